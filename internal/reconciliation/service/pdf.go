package service

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/providers/pdf"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"github.com/shopspring/decimal"
)

func (s *Service) RenderPDF(ctx context.Context, id snowflake.ID) (string, io.Reader, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return "", nil, err
	}
	body, err := s.pdf.Render(ctx, reportDocument(*run))
	if err != nil {
		return "", nil, err
	}
	return reportFilename(*run), body, nil
}

func reportFilename(run domain.Run) string {
	name := fmt.Sprintf("reconciliation %s %s", run.StartedAt.UTC().Format("2006-01-02 1504"), run.RunKey)
	if run.DryRun {
		name += " dry run"
	}
	return slug.Make(name) + ".pdf"
}

func reportDocument(run domain.Run) pdf.Document {
	report := run.Summary.Data()

	mode := "live"
	if run.DryRun {
		mode = "dry run"
	}
	finished := "-"
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}

	doc := pdf.Document{
		Title:    "Reconciliation report",
		Subtitle: fmt.Sprintf("Run %s (%s), %s", run.RunKey, mode, run.Status),
		Summary: []pdf.Field{
			{Label: "Started", Value: run.StartedAt.UTC().Format(time.RFC3339)},
			{Label: "Finished", Value: finished},
			{Label: "Orders paid since", Value: report.Since.UTC().Format(time.RFC3339)},
			{Label: "Scanned", Value: strconv.Itoa(report.Counts.Scanned)},
			{Label: "Repaired", Value: strconv.Itoa(report.Counts.Repaired)},
			{Label: "Already consistent", Value: strconv.Itoa(report.Counts.AlreadyConsistent)},
			{Label: "Discount retrofits", Value: strconv.Itoa(report.Counts.Retrofits)},
			{Label: "Referrals expired", Value: strconv.Itoa(report.Counts.Expired)},
			{Label: "Failed", Value: strconv.Itoa(report.Counts.Failed)},
			{Label: "Commission posted", Value: formatMinor(report.Totals.CommissionPostedMinor)},
			{Label: "Credit issued", Value: formatMinor(report.Totals.CreditIssuedMinor)},
		},
		Columns: []pdf.Column{
			{Header: "Order", Width: 3},
			{Header: "Action", Width: 2},
			{Header: "Type", Width: 2},
			{Header: "Party", Width: 3},
			{Header: "Amount", Width: 2, Right: true},
		},
		Notes: report.Errors,
	}
	for _, a := range report.Affected {
		party := ""
		switch {
		case a.RecipientID != nil:
			party = a.RecipientID.String()
		case a.CustomerID != nil:
			party = a.CustomerID.String()
		}
		action := a.Action
		if a.Error != "" {
			action += ": " + a.Error
		}
		doc.Rows = append(doc.Rows, []string{
			a.OrderID.String(),
			action,
			string(a.CommissionType),
			party,
			formatMinor(a.AmountMinor),
		})
	}
	return doc
}

func formatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
