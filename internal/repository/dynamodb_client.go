package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"profile-agent/internal/domain"
)

const (
	skState       = "STATE#"
	skPrefixMsg   = "MSG#"
	skPrefixStats = "ANALYTICS#"
	skPrefixIdem  = "IDEM#"
	ttlDuration   = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding session memory, turn history,
// analytics records, and idempotency claims, all under one partition per
// session.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// sessPK returns the partition key for a session.
func sessPK(sessionID string) string {
	return "SESS#" + sessionID
}

// timestampSK returns a sort key with the current UTC timestamp under the
// given prefix.
func timestampSK(prefix string, ts time.Time) string {
	return prefix + ts.UTC().Format(time.RFC3339Nano)
}

// ttlValue returns a Unix timestamp 30 days in the future.
func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// GetSession loads the persisted session memory. A session that has never
// been saved returns a zero-value memory with the ID set, not an error.
func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.SessionMemory, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skState},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMemory{}, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMemory{SessionID: sessionID}, nil
	}
	return itemToSession(sessionID, out.Item)
}

// SaveTurn writes the updated session memory and the completed turn message
// in one transaction, so a partially recorded turn cannot skew the turn
// count.
func (c *Client) SaveTurn(ctx context.Context, mem domain.SessionMemory, question, answer string) error {
	if strings.TrimSpace(mem.SessionID) == "" {
		return errors.New("repository: SaveTurn: session ID is required")
	}
	now := time.Now().UTC()

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                messageItem(mem.SessionID, question, answer, now),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      sessionItem(mem),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn: %w", err)
	}
	return nil
}

// GetHistory returns up to limit completed exchanges, oldest first.
func (c *Client) GetHistory(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	out, err := c.queryPrefix(ctx, sessionID, skPrefixMsg, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	history := make([]domain.Exchange, 0, len(out.Items))
	for _, item := range out.Items {
		question, err := strAttr(item, "question")
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		answer, _ := strAttr(item, "answer") // allow empty
		history = append(history, domain.Exchange{Question: question, Answer: answer})
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// WriteAnalytics appends one analytics record. The record is stored as a
// JSON document; analytics reads are served wholesale, never queried by
// field.
func (c *Client) WriteAnalytics(ctx context.Context, rec domain.AnalyticsRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return errors.New("repository: WriteAnalytics: session ID is required")
	}
	blob, err := json.Marshal(analyticsDoc(rec))
	if err != nil {
		return fmt.Errorf("repository: WriteAnalytics marshal: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: sessPK(rec.SessionID)},
			"SK":     &types.AttributeValueMemberS{Value: timestampSK(skPrefixStats, rec.TurnTimestamp)},
			"record": &types.AttributeValueMemberS{Value: string(blob)},
			"ttl":    &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: WriteAnalytics: %w", err)
	}
	return nil
}

// GetAnalytics returns up to limit analytics records, newest first.
func (c *Client) GetAnalytics(ctx context.Context, sessionID string, limit int) ([]domain.AnalyticsRecord, error) {
	out, err := c.queryPrefix(ctx, sessionID, skPrefixStats, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: GetAnalytics query: %w", err)
	}

	recs := make([]domain.AnalyticsRecord, 0, len(out.Items))
	for _, item := range out.Items {
		blob, err := strAttr(item, "record")
		if err != nil {
			return nil, fmt.Errorf("repository: GetAnalytics unmarshal: %w", err)
		}
		var doc analyticsDocument
		if err := json.Unmarshal([]byte(blob), &doc); err != nil {
			return nil, fmt.Errorf("repository: GetAnalytics decode: %w", err)
		}
		recs = append(recs, doc.toRecord())
	}
	return recs, nil
}

// queryPrefix reads newest-first items for one SK prefix within a session.
func (c *Client) queryPrefix(ctx context.Context, sessionID, prefix string, limit int) (*dynamodb.QueryOutput, error) {
	return c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		// Read newest first so LIMIT favors the most recent items.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
}

func sessionItem(mem domain.SessionMemory) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: sessPK(mem.SessionID)},
		"SK":              &types.AttributeValueMemberS{Value: skState},
		"role":            &types.AttributeValueMemberS{Value: string(mem.Role)},
		"status":          &types.AttributeValueMemberS{Value: mem.Distribution.String()},
		"signals":         &types.AttributeValueMemberS{Value: joinSignals(mem.Signals)},
		"deliveryAddress": &types.AttributeValueMemberS{Value: mem.DeliveryAddress},
		"turns":           &types.AttributeValueMemberN{Value: strconv.Itoa(mem.TurnCount)},
		"ttl":             &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
	}
}

func messageItem(sessionID, question, answer string, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":       &types.AttributeValueMemberS{Value: sessPK(sessionID)},
		"SK":       &types.AttributeValueMemberS{Value: timestampSK(skPrefixMsg, ts)},
		"question": &types.AttributeValueMemberS{Value: question},
		"answer":   &types.AttributeValueMemberS{Value: answer},
		"ttl":      &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
	}
}

func itemToSession(sessionID string, item map[string]types.AttributeValue) (domain.SessionMemory, error) {
	status, err := strAttr(item, "status")
	if err != nil {
		return domain.SessionMemory{}, fmt.Errorf("repository: GetSession decode status: %w", err)
	}
	turns, err := intAttr(item, "turns")
	if err != nil {
		return domain.SessionMemory{}, fmt.Errorf("repository: GetSession decode turns: %w", err)
	}
	role, _ := strAttr(item, "role")               // allow empty
	signals, _ := strAttr(item, "signals")         // allow empty
	address, _ := strAttr(item, "deliveryAddress") // allow empty

	return domain.SessionMemory{
		SessionID:       sessionID,
		Role:            domain.ParseRole(role),
		Distribution:    domain.ParseDistributionStatus(status),
		Signals:         splitSignals(signals),
		DeliveryAddress: address,
		TurnCount:       turns,
	}, nil
}

func joinSignals(signals []domain.Signal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ",")
}

func splitSignals(s string) []domain.Signal {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	signals := make([]domain.Signal, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			signals = append(signals, domain.Signal(p))
		}
	}
	return signals
}

// analyticsDocument is the JSON persistence shape for an analytics record.
type analyticsDocument struct {
	SessionID        string           `json:"sessionId"`
	TurnTimestamp    time.Time        `json:"turnTimestamp"`
	StageLatenciesMs map[string]int64 `json:"stageLatenciesMs"`
	RetrievalScores  []float64        `json:"retrievalScores"`
	ActionsTaken     []actionResult   `json:"actionsTaken"`
	Distribution     string           `json:"distributionStatus"`
}

type actionResult struct {
	Type   string `json:"type"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func analyticsDoc(rec domain.AnalyticsRecord) analyticsDocument {
	actions := make([]actionResult, 0, len(rec.ActionsTaken))
	for _, a := range rec.ActionsTaken {
		actions = append(actions, actionResult{Type: string(a.Type), OK: a.OK, Detail: a.Detail})
	}
	return analyticsDocument{
		SessionID:        rec.SessionID,
		TurnTimestamp:    rec.TurnTimestamp,
		StageLatenciesMs: rec.StageLatenciesMs,
		RetrievalScores:  rec.RetrievalScores,
		ActionsTaken:     actions,
		Distribution:     rec.Distribution.String(),
	}
}

func (d analyticsDocument) toRecord() domain.AnalyticsRecord {
	actions := make([]domain.ActionResult, 0, len(d.ActionsTaken))
	for _, a := range d.ActionsTaken {
		actions = append(actions, domain.ActionResult{Type: domain.ActionType(a.Type), OK: a.OK, Detail: a.Detail})
	}
	return domain.AnalyticsRecord{
		SessionID:        d.SessionID,
		TurnTimestamp:    d.TurnTimestamp,
		StageLatenciesMs: d.StageLatenciesMs,
		RetrievalScores:  d.RetrievalScores,
		ActionsTaken:     actions,
		Distribution:     domain.ParseDistributionStatus(d.Distribution),
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
