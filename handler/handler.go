package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"profile-agent/internal/domain"
	"profile-agent/internal/pipeline"
	"profile-agent/internal/ratelimit"
)

// TurnService is the pipeline surface the handler depends on.
type TurnService interface {
	HandleTurn(ctx context.Context, in pipeline.TurnInput) (pipeline.TurnOutput, error)
	Analytics(ctx context.Context, sessionID string, limit int) ([]domain.AnalyticsRecord, error)
}

type turnRequest struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Query     string `json:"query"`
}

type actionTaken struct {
	Type   string `json:"type"`
	OK     bool   `json:"ok"`
	Result string `json:"result,omitempty"`
}

type turnSource struct {
	SourceID string  `json:"sourceId"`
	Score    float64 `json:"score"`
}

type turnResponse struct {
	SessionID    string        `json:"sessionId"`
	Answer       string        `json:"answer"`
	ActionsTaken []actionTaken `json:"actionsTaken"`
	Sources      []turnSource  `json:"sources"`
}

type analyticsResponse struct {
	SessionID string            `json:"sessionId"`
	Records   []analyticsRecord `json:"records"`
}

type analyticsRecord struct {
	TurnTimestamp    string           `json:"turnTimestamp"`
	StageLatenciesMs map[string]int64 `json:"stageLatenciesMs"`
	RetrievalScores  []float64        `json:"retrievalScores"`
	ActionsTaken     []actionTaken    `json:"actionsTaken"`
	Distribution     string           `json:"distributionStatus"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler routes API Gateway events to the pipeline.
type Handler struct {
	svc     TurnService
	limiter *ratelimit.Limiter
}

// NewHandler creates a Handler. The limiter guards the analytics route only;
// turn handling is limited upstream.
func NewHandler(svc TurnService, limiter *ratelimit.Limiter) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: turn service must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("handler: rate limiter must not be nil")
	}
	return &Handler{svc: svc, limiter: limiter}, nil
}

// Handle dispatches one API Gateway request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)

	switch {
	case req.HTTPMethod == http.MethodPost && req.Path == "/turn":
		return h.handleTurn(ctx, req, corrID), nil
	case req.HTTPMethod == http.MethodGet && strings.HasPrefix(req.Path, "/analytics/"):
		return h.handleAnalytics(ctx, req, corrID), nil
	default:
		return jsonResponse(http.StatusNotFound, corrID, errorResponse{Error: "NOT_FOUND"}), nil
	}
}

func (h *Handler) handleTurn(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var body turnRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: string(pipeline.ErrorInvalidInput), Reason: "malformed_body"})
	}

	out, err := h.svc.HandleTurn(ctx, pipeline.TurnInput{
		SessionID: body.SessionID,
		Role:      body.Role,
		Query:     body.Query,
	})
	if err != nil {
		return errorToResponse(err, corrID)
	}

	actions := make([]actionTaken, 0, len(out.ActionsTaken))
	for _, a := range out.ActionsTaken {
		actions = append(actions, actionTaken{Type: string(a.Type), OK: a.OK, Result: a.Detail})
	}
	sources := make([]turnSource, 0, len(out.Sources))
	for _, s := range out.Sources {
		sources = append(sources, turnSource{SourceID: s.SourceID, Score: s.Score})
	}

	return jsonResponse(http.StatusOK, corrID, turnResponse{
		SessionID:    out.SessionID,
		Answer:       out.Answer,
		ActionsTaken: actions,
		Sources:      sources,
	})
}

func (h *Handler) handleAnalytics(ctx context.Context, req events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	if !h.limiter.Allow(clientIdentity(req)) {
		return jsonResponse(http.StatusTooManyRequests, corrID, errorResponse{Error: string(pipeline.ErrorRateLimited), Reason: "analytics_rate_limited"})
	}

	sessionID := strings.TrimPrefix(req.Path, "/analytics/")
	recs, err := h.svc.Analytics(ctx, sessionID, 20)
	if err != nil {
		return errorToResponse(err, corrID)
	}

	records := make([]analyticsRecord, 0, len(recs))
	for _, r := range recs {
		actions := make([]actionTaken, 0, len(r.ActionsTaken))
		for _, a := range r.ActionsTaken {
			actions = append(actions, actionTaken{Type: string(a.Type), OK: a.OK, Result: a.Detail})
		}
		records = append(records, analyticsRecord{
			TurnTimestamp:    r.TurnTimestamp.UTC().Format(time.RFC3339Nano),
			StageLatenciesMs: r.StageLatenciesMs,
			RetrievalScores:  r.RetrievalScores,
			ActionsTaken:     actions,
			Distribution:     r.Distribution.String(),
		})
	}
	return jsonResponse(http.StatusOK, corrID, analyticsResponse{SessionID: sessionID, Records: records})
}

func errorToResponse(err error, corrID string) events.APIGatewayProxyResponse {
	var pErr *pipeline.Error
	if !errors.As(err, &pErr) {
		return jsonResponse(http.StatusInternalServerError, corrID, errorResponse{Error: string(pipeline.ErrorInternal)})
	}

	status := http.StatusInternalServerError
	switch pErr.Code {
	case pipeline.ErrorInvalidInput:
		status = http.StatusBadRequest
	case pipeline.ErrorRateLimited:
		status = http.StatusTooManyRequests
	}
	return jsonResponse(status, corrID, errorResponse{Error: string(pErr.Code), Reason: pErr.Reason})
}

// clientIdentity picks the rate-limit key: explicit client header when
// present, else the source IP.
func clientIdentity(req events.APIGatewayProxyRequest) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, "X-Client-Id") && v != "" {
			return v
		}
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		return ip
	}
	return "anonymous"
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, "X-Correlation-Id") && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, corrID string, body interface{}) events.APIGatewayProxyResponse {
	blob, err := json.Marshal(body)
	if err != nil {
		blob = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(blob),
	}
}
