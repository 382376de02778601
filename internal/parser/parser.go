package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pdf-rag/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

const noPage = 0

var parsers = map[string]func(string) ([]models.Document, error){
	".pdf":      parsePDF,
	".docx":     parseDOCX,
	".pptx":     parsePPTX,
	".xlsx":     parseXLSX,
	".xlsm":     parseXLSX,
	".md":       parseMarkdown,
	".markdown": parseMarkdown,
	".txt":      parseText,
}

// ParseFile extracts the documents contained in a single file. Paged formats
// yield one document per non-blank page.
func ParseFile(filePath string) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	parse, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return safeParse(filePath, parse)
}

// safeParse turns a panic in parse into an error.
func safeParse(filePath string, parse func(string) ([]models.Document, error)) (docs []models.Document, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			docs, err = nil, fmt.Errorf("failed to parse %s: %v", filePath, r)
		}
	}()
	return parse(filePath)
}

func parsePDF(filePath string) ([]models.Document, error) {
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
		return nil, fmt.Errorf("failed to read pdf %s: %w", filePath, err)
	}

	var docs []models.Document
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d of %s: %w", i, filePath, err)
		}
		docs = appendIfText(docs, pageText, filePath, i)
	}
	return docs, nil
}

var (
	paragraphEndRe = regexp.MustCompile(`</w:p>`)
	xmlTagRe       = regexp.MustCompile(`<[^>]+>`)
)

func parseDOCX(filePath string) ([]models.Document, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document.xml body
	content := r.Editable().GetContent()
	content = paragraphEndRe.ReplaceAllString(content, "\n")
	content = xmlTagRe.ReplaceAllString(content, "")
	content = unescapeXML(content)

	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(p))
		}
	}
	return appendIfText(nil, strings.Join(paragraphs, "\n\n"), filePath, noPage), nil
}

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePPTX(filePath string) ([]models.Document, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		docs = appendIfText(docs, extractTextFromXML(string(data)), filePath, slideNum)
	}

	// zip order is not slide order
	sort.Slice(docs, func(i, j int) bool { return docs[i].Page < docs[j].Page })
	return docs, nil
}

func parseXLSX(filePath string) ([]models.Document, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		fmt.Fprintf(&text, "Sheet: %s\n", sheetName)
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		if len(rows) == 0 {
			continue
		}
		docs = appendIfText(docs, text.String(), filePath, sheetNum+1)
	}
	return docs, nil
}

func parseText(filePath string) ([]models.Document, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return appendIfText(nil, string(data), filePath, noPage), nil
}

func appendIfText(docs []models.Document, content, source string, page int) []models.Document {
	if strings.TrimSpace(content) == "" {
		return docs
	}
	return append(docs, models.Document{
		Content: content,
		Source:  source,
		Page:    page,
	})
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(unescapeXML(part[:endIdx]) + " ")
		}
	}
	return strings.TrimSpace(text.String())
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
