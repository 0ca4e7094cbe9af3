package types

import (
	"fmt"
	"strings"
)

type DocumentType string

const (
	DocumentSite            DocumentType = "Site"
	DocumentVideoTranscript DocumentType = "VideoTranscript"
	DocumentPDF             DocumentType = "PDF"
	DocumentCSV             DocumentType = "CSV"
	DocumentPlainText       DocumentType = "PlainText"
)

var DocumentTypes = []DocumentType{DocumentSite, DocumentVideoTranscript, DocumentPDF, DocumentCSV, DocumentPlainText}

// legacy labels still sent by older clients
var documentTypeAliases = map[string]DocumentType{
	"site":            DocumentSite,
	"videotranscript": DocumentVideoTranscript,
	"link youtube":    DocumentVideoTranscript,
	"youtube":         DocumentVideoTranscript,
	"pdf":             DocumentPDF,
	".pdf":            DocumentPDF,
	"csv":             DocumentCSV,
	".csv":            DocumentCSV,
	"plaintext":       DocumentPlainText,
	"txt":             DocumentPlainText,
	".txt":            DocumentPlainText,
}

func ParseDocumentType(s string) (DocumentType, error) {
	if dt, ok := documentTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// Label is the human-readable name used in prompts.
func (d DocumentType) Label() string {
	switch d {
	case DocumentSite:
		return "web page"
	case DocumentVideoTranscript:
		return "video transcript"
	case DocumentPDF:
		return "PDF document"
	case DocumentCSV:
		return "CSV spreadsheet"
	case DocumentPlainText:
		return "text file"
	}
	return string(d)
}
