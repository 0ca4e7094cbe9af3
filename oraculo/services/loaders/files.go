package loaders

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"oraculo/oraculo/utils/logging"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// sanitizePDF cuts trailing bytes after the last %%EOF, which downloaded
// files often carry.
func sanitizePDF(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return content
	}
	eof := []byte("%%EOF")
	last := bytes.LastIndex(content, eof)
	if last == -1 {
		return content
	}
	end := last + len(eof)
	for end < len(content) && (content[end] == '\n' || content[end] == '\r') {
		end++
	}
	if len(content)-end > 10 {
		return content[:end]
	}
	return content
}

func extractPDF(content []byte) (string, error) {
	if len(content) == 0 {
		return "", errors.New("empty PDF content")
	}
	content = sanitizePDF(content)

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("parse PDF: %w", err)
	}
	numPages := reader.NumPage()
	if numPages == 0 {
		return "", errors.New("PDF has no pages")
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			text, plainErr := page.GetPlainText(nil)
			if plainErr != nil {
				logging.AppLogger.Warn("pdf page unreadable", zap.Int("page", i), zap.Error(plainErr))
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n\n")
			continue
		}
		for _, row := range rows {
			var line strings.Builder
			for _, word := range row.Content {
				line.WriteString(word.S)
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				sb.WriteString(s)
				sb.WriteString("\n")
			}
		}
		// blank line between pages keeps them as separate paragraphs
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// extractCSV renders each record as "header: value, header: value".
func extractCSV(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read CSV header: %w", err)
	}

	var lines []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read CSV: %w", err)
		}
		fields := make([]string, 0, len(header))
		for i, key := range header {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			fields = append(fields, key+": "+value)
		}
		lines = append(lines, strings.Join(fields, ", "))
	}
	return strings.Join(lines, "\n"), nil
}
