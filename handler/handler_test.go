package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"profile-agent/internal/domain"
	"profile-agent/internal/pipeline"
	"profile-agent/internal/ratelimit"
)

type stubService struct {
	turnOut   pipeline.TurnOutput
	turnErr   error
	turnIn    pipeline.TurnInput
	analyt    []domain.AnalyticsRecord
	analytErr error
}

func (s *stubService) HandleTurn(_ context.Context, in pipeline.TurnInput) (pipeline.TurnOutput, error) {
	s.turnIn = in
	return s.turnOut, s.turnErr
}

func (s *stubService) Analytics(context.Context, string, int) ([]domain.AnalyticsRecord, error) {
	return s.analyt, s.analytErr
}

func newTestHandler(t *testing.T, svc *stubService, capacity int) *Handler {
	t.Helper()
	limiter, err := ratelimit.New(capacity, 0.001)
	require.NoError(t, err)
	h, err := NewHandler(svc, limiter)
	require.NoError(t, err)
	return h
}

func TestNewHandler_Validation(t *testing.T) {
	limiter, err := ratelimit.New(1, 1)
	require.NoError(t, err)

	_, err = NewHandler(nil, limiter)
	require.Error(t, err)
	_, err = NewHandler(&stubService{}, nil)
	require.Error(t, err)
}

func TestHandle_UnknownRouteIs404(t *testing.T) {
	h := newTestHandler(t, &stubService{}, 10)
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/nope",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleTurn_HappyPath(t *testing.T) {
	svc := &stubService{turnOut: pipeline.TurnOutput{
		SessionID: "sess-1",
		Answer:    "I build backend services in Go.",
		ActionsTaken: []domain.ActionResult{
			{Type: domain.ActionRecordAnalytics, OK: true, Detail: "recorded"},
		},
		Sources: []pipeline.TurnSource{{SourceID: "roles/acme", Score: 0.9}},
	}}
	h := newTestHandler(t, svc, 10)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/turn",
		Body:       `{"sessionId":"sess-1","role":"engineer","query":"what do you build?"}`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	require.Equal(t, "sess-1", svc.turnIn.SessionID)
	require.Equal(t, "engineer", svc.turnIn.Role)

	var body turnResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.Equal(t, "I build backend services in Go.", body.Answer)
	require.Len(t, body.ActionsTaken, 1)
	require.Equal(t, "record_analytics", body.ActionsTaken[0].Type)
	require.Len(t, body.Sources, 1)
	require.Equal(t, "roles/acme", body.Sources[0].SourceID)
}

func TestHandleTurn_MalformedBody(t *testing.T) {
	h := newTestHandler(t, &stubService{}, 10)
	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/turn",
		Body:       `{"sessionId":`,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.Equal(t, "INVALID_INPUT", body.Error)
	require.Equal(t, "malformed_body", body.Reason)
}

func TestHandleTurn_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", &pipeline.Error{Code: pipeline.ErrorInvalidInput, Reason: "missing_session_id"}, http.StatusBadRequest, "INVALID_INPUT"},
		{"rate limited", &pipeline.Error{Code: pipeline.ErrorRateLimited, Reason: "too_fast"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"internal", &pipeline.Error{Code: pipeline.ErrorInternal, Reason: "analytics_read_error"}, http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{turnErr: tc.err}, 10)
			resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
				HTTPMethod: http.MethodPost,
				Path:       "/turn",
				Body:       `{"sessionId":"sess-1","query":"hi"}`,
			})
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
			require.Equal(t, tc.wantCode, body.Error)
		})
	}
}

func TestHandle_CorrelationIDEchoedOrGenerated(t *testing.T) {
	h := newTestHandler(t, &stubService{}, 10)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/turn",
		Headers:    map[string]string{"x-correlation-id": "corr-42"},
		Body:       `{"sessionId":"sess-1","query":"hi"}`,
	})
	require.NoError(t, err)
	require.Equal(t, "corr-42", resp.Headers["X-Correlation-Id"])

	resp, err = h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/turn",
		Body:       `{"sessionId":"sess-1","query":"hi"}`,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandleAnalytics_ProjectsRecords(t *testing.T) {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	svc := &stubService{analyt: []domain.AnalyticsRecord{{
		SessionID:        "sess-1",
		TurnTimestamp:    ts,
		StageLatenciesMs: map[string]int64{"classify": 1},
		RetrievalScores:  []float64{0.9},
		ActionsTaken:     []domain.ActionResult{{Type: domain.ActionSendDocument, OK: true, Detail: "msg-1"}},
		Distribution:     domain.DistributionSent,
	}}}
	h := newTestHandler(t, svc, 10)

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/analytics/sess-1",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body analyticsResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.Equal(t, "sess-1", body.SessionID)
	require.Len(t, body.Records, 1)
	require.Equal(t, ts.Format(time.RFC3339Nano), body.Records[0].TurnTimestamp)
	require.Equal(t, "sent", body.Records[0].Distribution)
	require.Equal(t, "send_document", body.Records[0].ActionsTaken[0].Type)
}

func TestHandleAnalytics_RateLimited(t *testing.T) {
	h := newTestHandler(t, &stubService{}, 2)
	req := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/analytics/sess-1",
		Headers:    map[string]string{"X-Client-Id": "client-a"},
	}

	for i := 0; i < 2; i++ {
		resp, err := h.Handle(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := h.Handle(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body errorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.Equal(t, "RATE_LIMITED", body.Error)

	// A different client is unaffected.
	other := req
	other.Headers = map[string]string{"X-Client-Id": "client-b"}
	resp, err = h.Handle(context.Background(), other)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
