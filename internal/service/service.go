package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"larkexport/internal/models"
)

type LarkGateway interface {
	TenantAccessToken(ctx context.Context) (string, error)
	ListChats(ctx context.Context, token string) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, token, chatID string, window *models.TimeWindow) ([]models.RawMessage, error)
	UserName(ctx context.Context, token, openID string) (string, error)
}

type FileSink interface {
	Write(rows []models.ExportRow) ([]byte, error)
}

type SheetSink interface {
	Write(ctx context.Context, rows []models.ExportRow, spreadsheetID string) models.SheetWriteResult
}

type NameCache interface {
	Name(ctx context.Context, openID string) (string, bool)
	StoreName(ctx context.Context, openID, name string) error
}

type ExportRepository interface {
	RecordRun(run models.ExportRun) error
	ListRuns() ([]models.ExportRun, error)
}

const systemSender = "System"

// ExportService drives one export: token, fetch, normalize, sink.
// cache and repo are optional and may be nil.
type ExportService struct {
	lark          LarkGateway
	fileSink      FileSink
	sheetSink     SheetSink
	cache         NameCache
	repo          ExportRepository
	spreadsheetID string
}

func NewExportService(lark LarkGateway, fileSink FileSink, sheetSink SheetSink, cache NameCache, repo ExportRepository, spreadsheetID string) *ExportService {
	return &ExportService{
		lark:          lark,
		fileSink:      fileSink,
		sheetSink:     sheetSink,
		cache:         cache,
		repo:          repo,
		spreadsheetID: spreadsheetID,
	}
}

func (s *ExportService) ChatList(ctx context.Context) ([]models.ChatSummary, error) {
	token, err := s.lark.TenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.lark.ListChats(ctx, token)
}

// ExportToFile runs the pipeline and serializes the rows into an xlsx
// buffer. Any stage failure aborts and propagates.
func (s *ExportService) ExportToFile(ctx context.Context, chatID string, window *models.TimeWindow) ([]byte, error) {
	rows, err := s.fetchRows(ctx, chatID, window)
	if err != nil {
		s.recordRun(chatID, "file", 0, "", err.Error())
		return nil, err
	}
	data, err := s.fileSink.Write(rows)
	if err != nil {
		s.recordRun(chatID, "file", len(rows), "", err.Error())
		return nil, fmt.Errorf("build export file: %w", err)
	}
	s.recordRun(chatID, "file", len(rows), "", "")
	return data, nil
}

// ExportToSheet runs the pipeline and writes the rows into a new tab of
// the configured spreadsheet. Token and fetch failures propagate as
// errors; sink failures are contained in the returned result.
func (s *ExportService) ExportToSheet(ctx context.Context, chatID string, window *models.TimeWindow) (models.SheetWriteResult, error) {
	if s.sheetSink == nil {
		return models.SheetWriteResult{}, fmt.Errorf("sheet sink is not configured")
	}
	rows, err := s.fetchRows(ctx, chatID, window)
	if err != nil {
		s.recordRun(chatID, "sheet", 0, "", err.Error())
		return models.SheetWriteResult{}, err
	}
	result := s.sheetSink.Write(ctx, rows, s.spreadsheetID)
	if result.Success {
		s.recordRun(chatID, "sheet", len(rows), result.SheetName, "")
	} else {
		s.recordRun(chatID, "sheet", len(rows), "", result.Error)
	}
	return result, nil
}

func (s *ExportService) ListRuns() ([]models.ExportRun, error) {
	if s.repo == nil {
		return []models.ExportRun{}, nil
	}
	return s.repo.ListRuns()
}

func (s *ExportService) fetchRows(ctx context.Context, chatID string, window *models.TimeWindow) ([]models.ExportRow, error) {
	token, err := s.lark.TenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.lark.ListMessages(ctx, token, chatID, window)
	if err != nil {
		return nil, err
	}
	return s.normalize(ctx, token, msgs)
}

// normalize converts raw messages into export rows, resolving each
// sender once per distinct open ID. Input order is preserved; the fetch
// stage already delivers messages oldest-first.
func (s *ExportService) normalize(ctx context.Context, token string, msgs []models.RawMessage) ([]models.ExportRow, error) {
	rows := make([]models.ExportRow, 0, len(msgs))
	names := make(map[string]string)
	for _, msg := range msgs {
		name, ok := names[msg.SenderOpenID]
		if !ok {
			var err error
			name, err = s.resolveName(ctx, token, msg.SenderOpenID)
			if err != nil {
				return nil, err
			}
			names[msg.SenderOpenID] = name
		}
		rows = append(rows, models.ExportRow{
			Time:   formatCreateTime(msg.CreateTime),
			Sender: name,
			Text:   extractText(msg.Content),
		})
	}
	return rows, nil
}

func (s *ExportService) resolveName(ctx context.Context, token, openID string) (string, error) {
	if openID == "" {
		return systemSender, nil
	}
	if s.cache != nil {
		if name, ok := s.cache.Name(ctx, openID); ok {
			return name, nil
		}
	}
	name, err := s.lark.UserName(ctx, token, openID)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.StoreName(ctx, openID, name); err != nil {
			log.Printf("Error caching name for %s: %v", openID, err)
		}
	}
	return name, nil
}

func (s *ExportService) recordRun(chatID, sinkName string, rowCount int, sheetName, errMsg string) {
	if s.repo == nil {
		return
	}
	run := models.ExportRun{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sink:      sinkName,
		RowCount:  rowCount,
		Status:    "ok",
		CreatedAt: time.Now().UTC(),
	}
	if sheetName != "" {
		run.SheetName = &sheetName
	}
	if errMsg != "" {
		run.Status = "failed"
		run.Error = &errMsg
	}
	if err := s.repo.RecordRun(run); err != nil {
		log.Printf("Error recording export run for chat %s: %v", chatID, err)
	}
}

// extractText pulls the text field out of a message body. Malformed
// content degrades to an empty string so one bad message cannot abort
// the export.
func extractText(content string) string {
	if content == "" {
		return ""
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		return ""
	}
	return body.Text
}

// formatCreateTime renders a string-encoded epoch-millisecond timestamp
// as "YYYY-MM-DD HH:MM:SS" in UTC, truncated to whole seconds.
func formatCreateTime(createTime string) string {
	ms, err := strconv.ParseInt(createTime, 10, 64)
	if err != nil {
		ms = 0
	}
	return time.Unix(ms/1000, 0).UTC().Format("2006-01-02 15:04:05")
}

// ParseWindow converts optional caller-supplied date strings into a
// fetch window. Accepts RFC3339 or plain YYYY-MM-DD dates; both empty
// means no window.
func ParseWindow(start, end string) (*models.TimeWindow, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	var w models.TimeWindow
	var err error
	if start != "" {
		if w.Start, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("invalid startTime %q: %w", start, err)
		}
	}
	if end != "" {
		if w.End, err = parseDate(end); err != nil {
			return nil, fmt.Errorf("invalid endTime %q: %w", end, err)
		}
	}
	return &w, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
