package app

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxContentRunes bounds the document text placed into generation prompts.
const maxContentRunes = 100_000

// extractLocalText pulls plain text out of a document without the gateway.
func extractLocalText(fileType string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch fileType {
	case mimePDF:
		text, err = parsePDF(data)
	case mimePPTX:
		text, err = parseOfficeXML(data, "ppt/slides/slide", "a:t", "a:p")
	case mimeDOCX:
		text, err = parseOfficeXML(data, "word/document", "w:t", "w:p")
	default:
		return "", fmt.Errorf("no local extractor for %s", fileType)
	}
	if err != nil {
		return "", err
	}
	text = normalizeText(text)
	if text == "" {
		return "", fmt.Errorf("no text extracted from %s", fileType)
	}
	return text, nil
}

func parsePDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			// Skip problematic pages instead of failing entirely
			continue
		}
		buf.WriteString(pageText)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// parseOfficeXML reads the text runs (textTag) of every zip part named prefix*.xml,
// breaking lines at paragraphTag.
func parseOfficeXML(data []byte, prefix, textTag, paragraphTag string) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open office zip: %w", err)
	}
	var parts []*zip.File
	for _, file := range reader.File {
		if strings.HasPrefix(file.Name, prefix) && path.Ext(file.Name) == ".xml" {
			parts = append(parts, file)
		}
	}
	sort.Slice(parts, func(i, j int) bool {
		return partNumber(parts[i].Name, prefix) < partNumber(parts[j].Name, prefix)
	})
	var buf strings.Builder
	for _, file := range parts {
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file.Name, err)
		}
		doc, err := html.Parse(bytes.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("parse %s: %w", file.Name, err)
		}
		buf.WriteString(extractRuns(doc, textTag, paragraphTag))
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// partNumber orders slide2.xml before slide10.xml.
func partNumber(name, prefix string) int {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".xml"))
	if err != nil {
		return 0
	}
	return n
}

func extractRuns(n *html.Node, textTag, paragraphTag string) string {
	var buf strings.Builder
	var walk func(*html.Node, bool)
	walk = func(node *html.Node, inRun bool) {
		if node.Type == html.TextNode && inRun {
			buf.WriteString(node.Data)
		}
		if node.Type == html.ElementNode && node.Data == textTag {
			inRun = true
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child, inRun)
		}
		if node.Type == html.ElementNode && node.Data == paragraphTag {
			buf.WriteString("\n")
		}
	}
	walk(n, false)
	return buf.String()
}

// normalizeText collapses whitespace within lines and drops empty lines.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
