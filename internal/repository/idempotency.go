package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Claim atomically reserves an idempotency key using a conditional put.
// Exactly one concurrent caller wins; the losers read the existing record
// and get either the completed result or an empty string for an in-flight
// claim. This is the compare-and-swap the distribution machine relies on —
// the session status field alone cannot serialize concurrent turns.
func (c *Client) Claim(ctx context.Context, key string) (bool, string, error) {
	pk, sk, err := idemKeys(key)
	if err != nil {
		return false, "", err
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":   &types.AttributeValueMemberS{Value: pk},
			"SK":   &types.AttributeValueMemberS{Value: sk},
			"done": &types.AttributeValueMemberBOOL{Value: false},
			"ttl":  &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err == nil {
		return true, "", nil
	}

	var condFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &condFailed) {
		return false, "", fmt.Errorf("repository: Claim put: %w", err)
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, "", fmt.Errorf("repository: Claim read existing: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		// Claim raced with a release; the caller treats this as in-flight
		// rather than retrying inside the store.
		return false, "", nil
	}

	done := false
	if v, ok := out.Item["done"].(*types.AttributeValueMemberBOOL); ok {
		done = v.Value
	}
	if !done {
		return false, "", nil
	}
	result, _ := strAttr(out.Item, "result") // allow empty
	return false, result, nil
}

// Complete marks a claimed key done and caches the execution result for
// duplicate callers.
func (c *Client) Complete(ctx context.Context, key, result string) error {
	pk, sk, err := idemKeys(key)
	if err != nil {
		return err
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: pk},
			"SK":     &types.AttributeValueMemberS{Value: sk},
			"done":   &types.AttributeValueMemberBOOL{Value: true},
			"result": &types.AttributeValueMemberS{Value: result},
			"ttl":    &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Complete: %w", err)
	}
	return nil
}

// Release frees a claimed key after a failed execution so a retried turn
// can attempt the action once more.
func (c *Client) Release(ctx context.Context, key string) error {
	pk, sk, err := idemKeys(key)
	if err != nil {
		return err
	}
	_, err = c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Release: %w", err)
	}
	return nil
}

// idemKeys splits a "<sessionID>#<actionType>" idempotency key into the
// session partition and IDEM sort key.
func idemKeys(key string) (pk, sk string, err error) {
	idx := strings.LastIndex(key, "#")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("repository: malformed idempotency key %q", key)
	}
	return sessPK(key[:idx]), skPrefixIdem + key[idx+1:], nil
}
