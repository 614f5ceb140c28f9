package bank

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetName = 31

var exportHeader = []any{"Type", "Question", "Options", "Answer", "Topic", "Unit", "Difficulty", "Source Type", "Format"}

// ExportXLSX writes a workbook with one sheet per subject. With no
// subjects given, every subject in the bank is exported.
func ExportXLSX(w io.Writer, doc *Document, subjects ...string) error {
	if len(subjects) == 0 {
		subjects = doc.Subjects()
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	used := make(map[string]bool)
	for i, subject := range subjects {
		sheet := uniqueSheetName(subject, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return fmt.Errorf("naming sheet %q: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %q: %w", sheet, err)
		}

		if err := writeSheet(f, sheet, doc.Entries(subject), bold); err != nil {
			return fmt.Errorf("sheet %q: %w", sheet, err)
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, entries []Entry, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{e.Type, e.Q, strings.Join(e.Opts, "\n"), e.A, e.Topic, e.Unit, e.Diff, e.SourceType, e.QuestionFormat}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheet, "B", "C", 60)
}

// uniqueSheetName makes a valid, unused worksheet name from a subject.
func uniqueSheetName(subject string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, subject)
	name = strings.Trim(strings.TrimSpace(name), "'")
	if name == "" {
		name = "Subject"
	}
	name = truncateName(name, maxSheetName)

	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateName(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateName(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
