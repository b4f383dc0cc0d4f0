package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"study-buddy-rag/internal/models"
)

const defaultPageNumber = 1

// Extract converts the file at filePath into ordered text units according to
// its declared type. It never returns partial output together with an error.
func Extract(filePath string, fileType models.FileType) (units []models.TextUnit, err error) {
	var parse func(string) ([]models.TextUnit, error)
	switch fileType {
	case models.FileTypePDF:
		parse = parsePDF
	case models.FileTypeDOCX:
		parse = parseDOCX
	case models.FileTypeTXT:
		parse = parseText
	case models.FileTypeMarkdown:
		parse = parseMarkdown
	case models.FileTypeXLSX:
		parse = parseXLSX
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, fileType)
	}

	// the pdf reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			units = nil
			err = &models.ExtractionError{FileType: fileType, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	units, err = parse(filePath)
	if err != nil {
		return nil, &models.ExtractionError{FileType: fileType, Err: err}
	}
	log.Debug().Str("file", filePath).Str("type", string(fileType)).Int("units", len(units)).Msg("Extracted text")
	return units, nil
}

// parsePDF emits one unit per page with extractable text.
func parsePDF(filePath string) ([]models.TextUnit, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var units []models.TextUnit
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		units = append(units, models.TextUnit{Text: pageText, PageNumber: i})
	}
	return units, nil
}

// parseDOCX joins the non-empty paragraphs into a single unit on page 1,
// DOCX has no native pagination.
func parseDOCX(filePath string) ([]models.TextUnit, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	paragraphs, err := docxParagraphs(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return []models.TextUnit{{
		Text:       strings.Join(paragraphs, "\n"),
		PageNumber: defaultPageNumber,
	}}, nil
}

// docxParagraphs walks WordprocessingML and returns the text of every
// non-blank <w:p>, in document order.
func docxParagraphs(content string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := current.String(); strings.TrimSpace(p) != "" {
					paragraphs = append(paragraphs, p)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return paragraphs, nil
}

func parseText(filePath string) ([]models.TextUnit, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("file is not valid UTF-8")
	}
	return []models.TextUnit{{Text: string(data), PageNumber: defaultPageNumber}}, nil
}

// parseXLSX emits one unit per non-empty sheet, numbered by sheet position.
func parseXLSX(filePath string) ([]models.TextUnit, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []models.TextUnit
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text bytes.Buffer
		hasCells := false
		for _, row := range rows {
			line := strings.Join(row, "\t")
			if strings.TrimSpace(line) == "" {
				continue
			}
			hasCells = true
			text.WriteString(line)
			text.WriteString("\n")
		}
		if !hasCells {
			continue
		}
		units = append(units, models.TextUnit{
			Text:       fmt.Sprintf("Sheet: %s\n%s", sheetName, text.String()),
			PageNumber: sheetNum + 1,
		})
	}
	return units, nil
}
