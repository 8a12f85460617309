// Package analysis turns normalized report text into a StructuredRecord by
// asking an analysis backend for the record fields and mapping whatever comes
// back onto the fixed schema.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/joseph-ayodele/medical-report-analyzer/constants"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/common"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/entity"
	"github.com/joseph-ayodele/medical-report-analyzer/internal/llm"
)

const (
	maxSummaryRunes = 1200
	leadRunes       = 300
)

type Engine struct {
	analyzer llm.Analyzer
	policy   *bluemonday.Policy
	logger   *slog.Logger
}

func NewEngine(analyzer llm.Analyzer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer: analyzer,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger,
	}
}

// Name reports the backend in use.
func (e *Engine) Name() string { return e.analyzer.Name() }

// Extract never fails: backend errors come back as a record with status failed.
// partial marks text that upstream stages could only partly recover.
func (e *Engine) Extract(ctx context.Context, text entity.NormalizedText, partial bool) entity.StructuredRecord {
	return e.ExtractFor(ctx, "", text, partial)
}

// ExtractFor is Extract with the source filename passed along as a hint.
func (e *Engine) ExtractFor(ctx context.Context, filename string, text entity.NormalizedText, partial bool) entity.StructuredRecord {
	log := common.LoggerFrom(ctx, e.logger)
	start := time.Now()

	rec := entity.NewRecord()
	if partial {
		rec.ExtractionStatus = constants.StatusPartial
	}
	if text.Truncated {
		rec.AddNote(fmt.Sprintf("text truncated to %d of %d characters before analysis", len([]rune(text.Text)), text.OriginalLength))
	}

	routed, err := e.analyze(ctx, llm.AnalyzeRequest{
		Text:      text.Text,
		Filename:  filename,
		Truncated: text.Truncated,
	})
	if err != nil {
		log.Warn("analysis.capability_failed", "analyzer", e.analyzer.Name(), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return failedRecord(rec.Notes, err)
	}
	if routed.FellBack() {
		rec.AddNote(fmt.Sprintf("primary analysis backend failed (%v); %s used instead", errors.Join(routed.Failures...), routed.Analyzer))
	}
	reply := routed.Text

	e.mapReply(ctx, reply, text.Text, &rec)
	rec.Ensure()

	log.Info("analysis.ok",
		"analyzer", e.analyzer.Name(),
		"status", rec.ExtractionStatus,
		"conditions", len(rec.Conditions),
		"medications", len(rec.Medications),
		"vitals", len(rec.Vitals),
		"treatments", len(rec.Treatments),
		"notes", len(rec.Notes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec
}

func (e *Engine) analyze(ctx context.Context, req llm.AnalyzeRequest) (llm.Routed, error) {
	if r, ok := e.analyzer.(llm.Router); ok {
		return r.AnalyzeRouted(ctx, req)
	}
	reply, err := e.analyzer.Analyze(ctx, req)
	return llm.Routed{Text: reply, Analyzer: e.analyzer.Name()}, err
}

// rawRecord is the loose decode target once the reply is known to be an
// object; every field is decoded on its own so one bad field can't sink the rest.
type rawRecord map[string]json.RawMessage

func (e *Engine) mapReply(ctx context.Context, reply, source string, rec *entity.StructuredRecord) {
	log := common.LoggerFrom(ctx, e.logger)

	obj, ok := llm.ExtractJSONObject(reply)
	if !ok {
		log.Warn("analysis.reply_not_json", "reply_len", len(reply))
		rec.Summary = clipRunes(e.clean(reply), maxSummaryRunes)
		rec.AddNote("analysis reply was not JSON; its text is used as the summary")
		e.ensureSummary(rec, source)
		return
	}

	data := []byte(obj)
	if err := llm.ValidateRecord(data); err != nil {
		log.Debug("analysis.schema_mismatch", "error", err)
		fixed, dropped, serr := llm.NormalizeAndSanitizeJSON(data, log)
		if serr != nil {
			log.Warn("analysis.reply_undecodable", "error", serr)
			rec.Summary = clipRunes(e.clean(reply), maxSummaryRunes)
			rec.AddNote("analysis reply was not valid JSON; its text is used as the summary")
			e.ensureSummary(rec, source)
			return
		}
		for _, d := range dropped {
			rec.AddNote(fmt.Sprintf("field %s was malformed and left empty", strings.TrimSuffix(d, "(type)")))
		}
		if verr := llm.ValidateRecord(fixed); verr != nil {
			log.Warn("analysis.revalidate_failed", "error", verr)
		}
		data = fixed
	}

	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		rec.Summary = clipRunes(e.clean(reply), maxSummaryRunes)
		rec.AddNote("analysis reply was not a JSON object; its text is used as the summary")
		e.ensureSummary(rec, source)
		return
	}

	var summary string
	if !decodeField(raw, llm.FieldSummary, &summary) {
		rec.AddNote("field summary was malformed and left empty")
	}
	if summary = e.clean(summary); !isPlaceholder(strings.ToLower(summary)) {
		rec.Summary = clipRunes(summary, maxSummaryRunes)
	}

	lists := []struct {
		field string
		dst   *[]string
	}{
		{llm.FieldConditions, &rec.Conditions},
		{llm.FieldMedications, &rec.Medications},
		{llm.FieldTreatments, &rec.Treatments},
	}
	for _, l := range lists {
		var items []string
		if !decodeField(raw, l.field, &items) {
			rec.AddNote(fmt.Sprintf("field %s was malformed and left empty", l.field))
		}
		*l.dst = e.cleanList(items)
	}

	vitals, ok := e.parseVitals(raw[llm.FieldVitals])
	if !ok {
		rec.AddNote("field vitals was malformed and left empty")
	}
	rec.Vitals = vitals

	e.ensureSummary(rec, source)
}

// decodeField reports false only when the field is present but does not decode.
func decodeField(raw rawRecord, field string, dst any) bool {
	v, ok := raw[field]
	if !ok || string(v) == "null" {
		return true
	}
	return json.Unmarshal(v, dst) == nil
}

func (e *Engine) ensureSummary(rec *entity.StructuredRecord, source string) {
	if rec.Summary != "" {
		return
	}
	if lead := documentLead(source); lead != "" {
		rec.Summary = lead
		rec.AddNote("summary missing from analysis; derived from the document text")
	}
}

// failedRecord carries over earlier notes so a truncation note isn't lost.
func failedRecord(notes []string, err error) entity.StructuredRecord {
	rec := entity.NewRecord()
	rec.ExtractionStatus = constants.StatusFailed
	rec.Summary = "Analysis failed: " + failureReason(err) + "."
	rec.Notes = append(append([]string{}, notes...), "analysis error: "+err.Error())
	return rec
}

func failureReason(err error) string {
	var se *llm.StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the analysis service timed out"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "the analysis service returned an empty response"
	case errors.As(err, &se):
		return fmt.Sprintf("the analysis service returned HTTP %d", se.Status)
	}
	return "the analysis service is unavailable"
}
