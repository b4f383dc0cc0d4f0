package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileType is the classified type of an uploaded document.
type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeDOCX     FileType = "docx"
	FileTypeTXT      FileType = "txt"
	FileTypeMarkdown FileType = "md"
	FileTypeXLSX     FileType = "xlsx"
)

// FileTypeFromName classifies a file by its extension.
func FileTypeFromName(name string) (FileType, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case "pdf":
		return FileTypePDF, nil
	case "docx", "doc":
		return FileTypeDOCX, nil
	case "txt":
		return FileTypeTXT, nil
	case "md", "markdown":
		return FileTypeMarkdown, nil
	case "xlsx":
		return FileTypeXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DocumentStatus is the processing state of a document. The only legal
// transitions are Pending -> Processing -> Completed|Failed.
type DocumentStatus int

const (
	StatusPending DocumentStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s DocumentStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s DocumentStatus) CanTransition(next DocumentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Transition returns next if the move is allowed.
func (s DocumentStatus) Transition(next DocumentStatus) (DocumentStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// LegacyCode maps the status onto the integer encoding older document rows
// use: 0 pending, 1 processing, 2 completed, -1 failed.
func (s DocumentStatus) LegacyCode() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusCompleted:
		return 2
	case StatusFailed:
		return -1
	default:
		return 0
	}
}

// StatusFromLegacyCode is the inverse of LegacyCode.
func StatusFromLegacyCode(code int) (DocumentStatus, error) {
	switch code {
	case 0:
		return StatusPending, nil
	case 1:
		return StatusProcessing, nil
	case 2:
		return StatusCompleted, nil
	case -1:
		return StatusFailed, nil
	default:
		return StatusPending, fmt.Errorf("unknown legacy status code %d", code)
	}
}
