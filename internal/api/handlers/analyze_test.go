package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/tonalworks/sonata-api/internal/analysis"
	"github.com/tonalworks/sonata-api/internal/config"
	"github.com/tonalworks/sonata-api/internal/enhance"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:        "test",
		EnhancementModel:   "gpt-5-mini",
		EnhancementTimeout: 5 * time.Second,
	}
}

// scaleMIDI builds an in-memory MIDI file playing repeated C major
// scales, long enough to segment.
func scaleMIDI(t *testing.T, numNotes int) []byte {
	t.Helper()
	pcs := []uint8{0, 2, 4, 5, 7, 9, 11, 0}

	s := smf.New()
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	for i := 0; i < numNotes; i++ {
		key := 60 + pcs[i%len(pcs)]
		tr.Add(0, midi.NoteOn(0, key, 90))
		tr.Add(960, midi.NoteOff(0, key))
	}
	tr.Close(0)
	require.NoError(t, s.Add(tr))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

// multipartUpload wraps data in a multipart body under the handler's
// expected field name.
func multipartUpload(t *testing.T, fieldName, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func analysisRouter(cfg *config.Config, enhancer enhance.Enhancer) *gin.Engine {
	r := gin.New()
	h := NewAnalysisHandler(cfg, enhancer, nil)
	r.POST("/api/v1/analysis", h.Analyze)
	return r
}

func postAnalysis(t *testing.T, r *gin.Engine, fieldName, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, fieldName, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeReturnsSegmentation(t *testing.T) {
	r := analysisRouter(testConfig(), nil)
	w := postAnalysis(t, r, "midi_file", "sonata.mid", scaleMIDI(t, 120))

	require.Equal(t, http.StatusOK, w.Code)

	var result analysis.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotEmpty(t, result.Sections)
	assert.NotEmpty(t, result.Summary)
	assert.GreaterOrEqual(t, result.OverallConfidence, 0.0)
	assert.LessOrEqual(t, result.OverallConfidence, 1.0)
}

func TestAnalyzeMissingFileField(t *testing.T) {
	r := analysisRouter(testConfig(), nil)
	w := postAnalysis(t, r, "wrong_field", "sonata.mid", scaleMIDI(t, 16))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "midi_file")
}

func TestAnalyzeRejectsWrongExtension(t *testing.T) {
	r := analysisRouter(testConfig(), nil)
	w := postAnalysis(t, r, "midi_file", "sonata.wav", scaleMIDI(t, 16))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid file type")
}

func TestAnalyzeRejectsUnparseableFile(t *testing.T) {
	r := analysisRouter(testConfig(), nil)
	w := postAnalysis(t, r, "midi_file", "broken.mid", []byte("not midi data"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid MIDI file")
}

// failingEnhancer always reports the collaborator as unavailable.
type failingEnhancer struct{}

func (failingEnhancer) Enhance(ctx context.Context, result *analysis.Result) (*enhance.EnhancedResult, error) {
	return nil, errors.New("boom: " + enhance.ErrUnavailable.Error())
}

func (failingEnhancer) Name() string { return "failing" }

// stubEnhancer returns the core result with a fixed historical note.
type stubEnhancer struct{}

func (stubEnhancer) Enhance(ctx context.Context, result *analysis.Result) (*enhance.EnhancedResult, error) {
	return &enhance.EnhancedResult{
		Result:            *result,
		HistoricalContext: "A textbook classical layout",
	}, nil
}

func (stubEnhancer) Name() string { return "stub" }

func TestAnalyzeFallsBackWhenEnhancementFails(t *testing.T) {
	cfg := testConfig()

	plain := postAnalysis(t, analysisRouter(cfg, nil), "midi_file", "sonata.mid", scaleMIDI(t, 120))
	require.Equal(t, http.StatusOK, plain.Code)

	degraded := postAnalysis(t, analysisRouter(cfg, failingEnhancer{}), "midi_file", "sonata.mid", scaleMIDI(t, 120))
	require.Equal(t, http.StatusOK, degraded.Code)

	// The core analysis comes through untouched.
	assert.JSONEq(t, plain.Body.String(), degraded.Body.String())
}

func TestAnalyzeIncludesEnhancementWhenAvailable(t *testing.T) {
	r := analysisRouter(testConfig(), stubEnhancer{})
	w := postAnalysis(t, r, "midi_file", "sonata.mid", scaleMIDI(t, 120))

	require.Equal(t, http.StatusOK, w.Code)

	var enhanced enhance.EnhancedResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &enhanced))
	assert.Equal(t, "A textbook classical layout", enhanced.HistoricalContext)
	assert.NotEmpty(t, enhanced.Sections)
}
