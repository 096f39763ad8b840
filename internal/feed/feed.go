// Package feed renders open loan requests as an Atom feed
package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dan9191/credit-network/internal/credit"
	"github.com/Dan9191/credit-network/internal/models"
	"github.com/beevik/etree"
)

const atomNS = "http://www.w3.org/2005/Atom"

// BuildLoanFeed renders loans as Atom entries. updated is used when there are no loans.
func BuildLoanFeed(baseURL string, loans []models.Loan, updated time.Time) ([]byte, error) {
	baseURL = strings.TrimRight(baseURL, "/")

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("feed")
	root.CreateAttr("xmlns", atomNS)
	root.CreateElement("id").SetText(baseURL + "/loans/feed")
	root.CreateElement("title").SetText("Agent Credit Network: open loan requests")

	self := root.CreateElement("link")
	self.CreateAttr("rel", "self")
	self.CreateAttr("href", baseURL+"/loans/feed")

	for _, l := range loans {
		if l.CreatedAt.After(updated) {
			updated = l.CreatedAt
		}
	}
	root.CreateElement("updated").SetText(updated.UTC().Format(time.RFC3339))

	for _, l := range loans {
		entry := root.CreateElement("entry")
		href := fmt.Sprintf("%s/loans/%d", baseURL, l.LoanID)
		entry.CreateElement("id").SetText(href)
		entry.CreateElement("title").SetText(fmt.Sprintf("Loan #%d: %s units at %s%% for %d days",
			l.LoanID, credit.FormatUnits(l.Amount), bpsToPercent(l.InterestRate), l.Duration))
		entry.CreateElement("updated").SetText(l.CreatedAt.UTC().Format(time.RFC3339))

		link := entry.CreateElement("link")
		link.CreateAttr("href", href)

		author := entry.CreateElement("author")
		author.CreateElement("name").SetText(l.BorrowerAddress)

		summary := entry.CreateElement("summary")
		summary.SetText(l.Purpose)

		cat := entry.CreateElement("category")
		cat.CreateAttr("term", l.Status.String())
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to render feed: %w", err)
	}
	return out, nil
}

// bpsToPercent renders basis points as a percentage, e.g. 1050 -> "10.5"
func bpsToPercent(bps int) string {
	s := fmt.Sprintf("%d.%02d", bps/100, bps%100)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
