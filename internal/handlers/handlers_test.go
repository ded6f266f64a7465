package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/example/portrait-extractor/internal/portrait"
	"github.com/example/portrait-extractor/internal/usecase"
)

type stubService struct {
	requestID  string
	outcome    portrait.Outcome
	summary    *usecase.MetricsSummary
	metricsErr error
	gotBytes   []byte
	calls      int
}

func (s *stubService) ExtractPortrait(ctx context.Context, imageBytes []byte) (string, portrait.Outcome) {
	s.calls++
	s.gotBytes = imageBytes
	return s.requestID, s.outcome
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	if s.metricsErr != nil {
		return nil, s.metricsErr
	}
	return s.summary, nil
}

func newTestRouter(svc ExtractionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc)
	return router
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="document.jpg"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func postExtract(t *testing.T, router *gin.Engine, contentType string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, bodyType := buildMultipartBody(t, contentType, payload)
	req := httptest.NewRequest(http.MethodPost, "/extract-portrait", body)
	req.Header.Set("Content-Type", bodyType)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return body
}

func TestExtractPortraitRequiresFile(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/extract-portrait", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be invoked without a file")
	}
}

func TestExtractPortraitRejectsNonImageContentType(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	resp := postExtract(t, router, "text/plain", []byte("hello"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service must not be invoked for non-image uploads")
	}
}

func TestExtractPortraitRejectsOversizedUpload(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc)

	resp := postExtract(t, router, "image/jpeg", bytes.Repeat([]byte("a"), MaxUploadSize+1))

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestExtractPortraitNoFaceResponse(t *testing.T) {
	svc := &stubService{
		requestID: "req-1",
		outcome:   portrait.Outcome{Code: portrait.OutcomeNoFaceFound},
	}
	router := newTestRouter(svc)

	resp := postExtract(t, router, "image/png", []byte("png bytes"))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	body := decodeBody(t, resp)
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	if body["error_code"] != "NO_FACE_DETECTED" {
		t.Fatalf("expected NO_FACE_DETECTED, got %v", body["error_code"])
	}
	if body["message"] != "No face detected in the image" {
		t.Fatalf("unexpected message: %v", body["message"])
	}
}

func TestExtractPortraitSuccessResponse(t *testing.T) {
	svc := &stubService{
		requestID: "req-2",
		outcome: portrait.Outcome{
			Code:           portrait.OutcomeSuccess,
			PortraitBase64: "aGVsbG8=",
			Width:          300,
			Height:         400,
		},
	}
	router := newTestRouter(svc)

	payload := []byte("jpeg bytes")
	resp := postExtract(t, router, "image/jpeg", payload)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if got := resp.Header().Get("X-Request-ID"); got != "req-2" {
		t.Fatalf("expected request id header, got %q", got)
	}
	if !bytes.Equal(svc.gotBytes, payload) {
		t.Fatal("service did not receive the uploaded bytes")
	}

	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body["success"])
	}
	if body["portrait_base64"] != "aGVsbG8=" {
		t.Fatalf("unexpected portrait payload: %v", body["portrait_base64"])
	}
	if body["portrait_format"] != "JPEG" {
		t.Fatalf("unexpected portrait format: %v", body["portrait_format"])
	}
	dims, ok := body["dimensions"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing dimensions: %v", body)
	}
	if dims["width"] != float64(300) || dims["height"] != float64(400) {
		t.Fatalf("unexpected dimensions: %v", dims)
	}
}

func TestExtractPortraitDecodeFailureResponse(t *testing.T) {
	svc := &stubService{
		outcome: portrait.Outcome{
			Code: portrait.OutcomeDecodeFailed,
			Err:  errors.New("corrupt bytes"),
		},
	}
	router := newTestRouter(svc)

	resp := postExtract(t, router, "image/png", []byte("corrupt"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestExtractPortraitInternalFaultResponse(t *testing.T) {
	svc := &stubService{
		outcome: portrait.Outcome{
			Code: portrait.OutcomeInternalFault,
			Err:  errors.New("resize blew up"),
		},
	}
	router := newTestRouter(svc)

	resp := postExtract(t, router, "image/png", []byte("image"))

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
	body := decodeBody(t, resp)
	if body["error"] == "resize blew up" {
		t.Fatal("internal error detail must not leak to the client")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	if body := decodeBody(t, resp); body["status"] != "healthy" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestRootEndpoint(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	body := decodeBody(t, resp)
	if body["message"] != ServiceName || body["version"] != Version {
		t.Fatalf("unexpected metadata body: %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := &stubService{summary: &usecase.MetricsSummary{
		TotalRequests:      4,
		PortraitsExtracted: 3,
		SuccessRate:        0.75,
	}}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.Code)
	}
	body := decodeBody(t, resp)
	if body["total_requests"] != float64(4) {
		t.Fatalf("unexpected metrics body: %v", body)
	}
}

func TestMetricsEndpointHandlesFailure(t *testing.T) {
	svc := &stubService{metricsErr: errors.New("db down")}
	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, resp.Code)
	}
}
