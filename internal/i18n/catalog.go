// Package i18n holds the user-facing message catalog in Vietnamese (the
// default) and English, plus locale-aware date formatting.
package i18n

import (
	"fmt"
	"strings"
	"time"
)

// Locale selects a message table.
type Locale string

const (
	Vietnamese Locale = "vi"
	English    Locale = "en"
)

// IsValid reports whether l is a supported locale.
func (l Locale) IsValid() bool {
	_, ok := tables[l]
	return ok
}

// Key identifies a catalog message.
type Key string

// Status messages.
const (
	Ready              Key = "ready"
	RequestingMic      Key = "requesting_mic"
	Recording          Key = "recording"
	ProcessingAudio    Key = "processing_audio"
	NoAudio            Key = "no_audio"
	PermissionDenied   Key = "permission_denied"
	DeviceNotFound     Key = "device_not_found"
	DeviceBusy         Key = "device_busy"
	GenericError       Key = "generic_error"
	Busy               Key = "busy"
	Transcribing       Key = "transcribing"
	TranscriptionEmpty Key = "transcription_empty"
	TranscriptionError Key = "transcription_error"
	Detecting          Key = "detecting"
	PolishingEnglish   Key = "polishing_english"
	Translating        Key = "translating"
	Polishing          Key = "polishing"
	PolishedTranslated Key = "polished_translated"
	Polished           Key = "polished"
	PolishEmpty        Key = "polish_empty"
	ProcessingError    Key = "processing_error"
	NoteLoaded         Key = "note_loaded"
	NoteNotFound       Key = "note_not_found"
	NoteDeleted        Key = "note_deleted"
	SaveFailed         Key = "save_failed"
)

// Surface texts.
const (
	TitlePlaceholder    Key = "title_placeholder"
	RawPlaceholder      Key = "raw_placeholder"
	PolishedPlaceholder Key = "polished_placeholder"
	UntitledNote        Key = "untitled_note"
	NewRecording        Key = "new_recording"
	NoteTitleFallback   Key = "note_title_fallback"
	NothingToExport     Key = "nothing_to_export"
)

// Assistant texts.
const (
	ChatGreeting      Key = "chat_greeting"
	ChatGreetingEmpty Key = "chat_greeting_empty"
	ChatError         Key = "chat_error"
	ChatUnsupported   Key = "chat_unsupported_file"
	ChatNone          Key = "chat_none"
	ChatNoteStart     Key = "chat_note_start"
	ChatNoteEnd       Key = "chat_note_end"
	ChatNoteTitle     Key = "chat_note_title"
	ChatNoteDate      Key = "chat_note_date"
	ChatNotePolished  Key = "chat_note_polished"
	ChatNoteRaw       Key = "chat_note_raw"
)

// Export texts.
const (
	ExportPolishedHeading Key = "export_polished_heading"
	ExportRawHeading      Key = "export_raw_heading"
)

var tables = map[Locale]map[Key]string{
	Vietnamese: {
		Ready:              "Sẵn sàng ghi âm",
		RequestingMic:      "Đang yêu cầu quyền truy cập micro...",
		Recording:          "Đang ghi âm...",
		ProcessingAudio:    "Đang xử lý âm thanh...",
		NoAudio:            "Không có dữ liệu âm thanh nào được ghi lại. Vui lòng thử lại.",
		PermissionDenied:   "Quyền truy cập micro bị từ chối. Vui lòng kiểm tra cài đặt và thử lại.",
		DeviceNotFound:     "Không tìm thấy micro. Vui lòng kết nối micro.",
		DeviceBusy:         "Không thể truy cập micro. Micro có thể đang được sử dụng bởi một ứng dụng khác.",
		GenericError:       "Lỗi: %s",
		Busy:               "Đang xử lý, vui lòng đợi...",
		Transcribing:       "Đang lấy bản phiên âm...",
		TranscriptionEmpty: "Phiên âm thất bại hoặc trống.",
		TranscriptionError: "Lỗi lấy bản phiên âm. Vui lòng thử lại.",
		Detecting:          "Đang xác định ngôn ngữ...",
		PolishingEnglish:   "Phát hiện tiếng Anh. Đang sửa ghi chép...",
		Translating:        "Đang dịch ghi chép sang %s...",
		Polishing:          "Đang sửa ghi chép...",
		PolishedTranslated: "Ghi chép đã được trau chuốt và dịch. Sẵn sàng cho bản ghi tiếp theo.",
		Polished:           "Ghi chép đã được trau chuốt. Sẵn sàng cho bản ghi tiếp theo.",
		PolishEmpty:        "Sửa ghi chép thất bại hoặc trống.",
		ProcessingError:    "Lỗi xử lý ghi chép. Vui lòng thử lại.",
		NoteLoaded:         "Đã tải ghi chép từ lịch sử.",
		NoteNotFound:       "Không tìm thấy ghi chép.",
		NoteDeleted:        "Đã xóa ghi chép.",
		SaveFailed:         "Không thể lưu ghi chép.",

		TitlePlaceholder:    "Ghi chép chưa có tiêu đề",
		RawPlaceholder:      "Bản phiên âm thô sẽ xuất hiện ở đây...",
		PolishedPlaceholder: "Ghi chép đã trau chuốt sẽ xuất hiện ở đây...",
		UntitledNote:        "Ghi chép không có tiêu đề",
		NewRecording:        "Bản ghi mới",
		NoteTitleFallback:   "Ghi chép ngày %s",
		NothingToExport:     "Không có ghi chép nào để xuất.",

		ChatGreeting:      "Xin chào! Tôi có thể giúp gì với các ghi chép của bạn?",
		ChatGreetingEmpty: "Xin chào! Hiện tại bạn chưa có ghi chép nào để trò chuyện. Hãy ghi âm điều gì đó hoặc hỏi tôi một câu hỏi chung!",
		ChatError:         "Rất tiếc, đã xảy ra lỗi. Vui lòng thử lại.",
		ChatUnsupported:   "Vui lòng chọn tệp hình ảnh, PDF hoặc DOCX.",
		ChatNone:          "Chưa có",
		ChatNoteStart:     "--- Ghi chép bắt đầu ---",
		ChatNoteEnd:       "--- Ghi chép kết thúc ---",
		ChatNoteTitle:     "Tiêu đề",
		ChatNoteDate:      "Ngày",
		ChatNotePolished:  "Nội dung đã trau chuốt",
		ChatNoteRaw:       "Nội dung phiên âm thô",

		ExportPolishedHeading: "Ghi chép đã trau chuốt",
		ExportRawHeading:      "Ghi chép nguyên văn",
	},
	English: {
		Ready:              "Ready to record",
		RequestingMic:      "Requesting microphone access...",
		Recording:          "Recording...",
		ProcessingAudio:    "Processing audio...",
		NoAudio:            "No audio data was captured. Please try again.",
		PermissionDenied:   "Microphone permission denied. Please check your settings and try again.",
		DeviceNotFound:     "No microphone found. Please connect a microphone.",
		DeviceBusy:         "Cannot access microphone. It may be in use by another application.",
		GenericError:       "Error: %s",
		Busy:               "Still processing, please wait...",
		Transcribing:       "Getting transcription...",
		TranscriptionEmpty: "Transcription failed or returned empty.",
		TranscriptionError: "Error getting transcription. Please try again.",
		Detecting:          "Detecting language...",
		PolishingEnglish:   "English detected. Polishing note...",
		Translating:        "Translating note to %s...",
		Polishing:          "Polishing note...",
		PolishedTranslated: "Note polished and translated. Ready for next recording.",
		Polished:           "Note polished. Ready for next recording.",
		PolishEmpty:        "Polishing failed or returned empty.",
		ProcessingError:    "Error processing note. Please try again.",
		NoteLoaded:         "Note loaded from history.",
		NoteNotFound:       "Note not found.",
		NoteDeleted:        "Note deleted.",
		SaveFailed:         "Could not save note.",

		TitlePlaceholder:    "Untitled Note",
		RawPlaceholder:      "Raw transcription will appear here...",
		PolishedPlaceholder: "Your polished notes will appear here...",
		UntitledNote:        "Untitled note",
		NewRecording:        "New Recording",
		NoteTitleFallback:   "Note %s",
		NothingToExport:     "There are no notes to export.",

		ChatGreeting:      "Hello! How can I help you with your notes?",
		ChatGreetingEmpty: "Hello! You don't have any notes to chat about yet. Record something or ask me a general question!",
		ChatError:         "Sorry, something went wrong. Please try again.",
		ChatUnsupported:   "Please choose an image, PDF or DOCX file.",
		ChatNone:          "None",
		ChatNoteStart:     "--- Note start ---",
		ChatNoteEnd:       "--- Note end ---",
		ChatNoteTitle:     "Title",
		ChatNoteDate:      "Date",
		ChatNotePolished:  "Polished content",
		ChatNoteRaw:       "Raw transcription",

		ExportPolishedHeading: "Polished note",
		ExportRawHeading:      "Raw transcription",
	},
}

var languageNames = map[Locale]map[string]string{
	Vietnamese: {"vietnamese": "tiếng Việt", "english": "tiếng Anh"},
}

// Catalog renders messages for one locale.
type Catalog struct {
	locale Locale
	msgs   map[Key]string
	loc    *time.Location
}

// New returns the catalog for locale. An empty locale selects Vietnamese.
func New(locale Locale) (*Catalog, error) {
	if locale == "" {
		locale = Vietnamese
	}
	msgs, ok := tables[locale]
	if !ok {
		return nil, fmt.Errorf("i18n: unsupported locale %q", locale)
	}
	return &Catalog{locale: locale, msgs: msgs, loc: time.Local}, nil
}

// MustNew is New for compile-time constant locales.
func MustNew(locale Locale) *Catalog {
	c, err := New(locale)
	if err != nil {
		panic(err)
	}
	return c
}

// WithLocation returns a copy of c that formats dates in loc.
func (c *Catalog) WithLocation(loc *time.Location) *Catalog {
	cp := *c
	cp.loc = loc
	return &cp
}

// Locale returns the catalog's locale.
func (c *Catalog) Locale() Locale { return c.locale }

// Text renders key, formatting args into it when given. Unknown keys render
// as the key itself.
func (c *Catalog) Text(key Key, args ...any) string {
	s, ok := c.msgs[key]
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

// LanguageName renders an English language name in the catalog's language.
func (c *Catalog) LanguageName(name string) string {
	if n, ok := languageNames[c.locale][strings.ToLower(name)]; ok {
		return n
	}
	return name
}

// Date formats t as a short date (vi: 18/10/2026, en: 10/18/2026).
func (c *Catalog) Date(t time.Time) string {
	t = t.In(c.loc)
	if c.locale == English {
		return t.Format("1/2/2006")
	}
	return t.Format("2/1/2006")
}

// DateTime formats t as a short date followed by hours and minutes.
func (c *Catalog) DateTime(t time.Time) string {
	t = t.In(c.loc)
	if c.locale == English {
		return t.Format("1/2/2006, 03:04 PM")
	}
	return t.Format("2/1/2006 15:04")
}
