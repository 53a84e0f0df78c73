package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"growth-engine/internal/domain"
)

const (
	pkPricing        = "PRICING"
	skMeta           = "META"
	skPrefixTier     = "TIER#"
	pkPrefixDiscount = "DISCOUNT#"
	discountTTL      = 180 * 24 * time.Hour
)

// ErrVersionConflict is returned when the pricing table changed between load
// and save.
var ErrVersionConflict = errors.New("repository: pricing table version conflict")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores the tiered pricing table and granted discounts in a single
// DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func tierSK(name string) string {
	return skPrefixTier + name
}

func discountPK(userID string) string {
	return pkPrefixDiscount + userID
}

// LoadTable reads every tier plus the meta record. Tiers are returned ordered
// by MinUnits. A table that was never written has version 0 and no tiers.
func (c *Client) LoadTable(ctx context.Context) (domain.PricingTable, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkPricing},
		},
		ConsistentRead: aws.Bool(true),
	}

	var table domain.PricingTable
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return domain.PricingTable{}, fmt.Errorf("repository: LoadTable query: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			sk, err := strAttr(item, "SK")
			if err != nil {
				return domain.PricingTable{}, fmt.Errorf("repository: LoadTable: %w", err)
			}
			switch {
			case sk == skMeta:
				if err := applyMeta(&table, item); err != nil {
					return domain.PricingTable{}, fmt.Errorf("repository: LoadTable meta: %w", err)
				}
			case strings.HasPrefix(sk, skPrefixTier):
				tier, err := itemToTier(item)
				if err != nil {
					return domain.PricingTable{}, fmt.Errorf("repository: LoadTable tier: %w", err)
				}
				table.Tiers = append(table.Tiers, tier)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(table.Tiers, func(i, j int) bool { return table.Tiers[i].MinUnits < table.Tiers[j].MinUnits })
	return table, nil
}

// SaveTiers writes all tiers and bumps the table version in one transaction.
// The write is rejected with ErrVersionConflict unless the stored version
// still equals expectedVersion.
func (c *Client) SaveTiers(ctx context.Context, tiers []domain.PriceTier, expectedVersion int64) error {
	if len(tiers) == 0 {
		return errors.New("repository: SaveTiers: no tiers")
	}
	if len(tiers) > 99 {
		return fmt.Errorf("repository: SaveTiers: %d tiers exceeds transaction limit", len(tiers))
	}

	items := make([]types.TransactWriteItem, 0, len(tiers)+1)
	for _, t := range tiers {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      tierItem(t),
			},
		})
	}
	values := map[string]types.AttributeValue{
		":next": numAttr(expectedVersion + 1),
		":now":  &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
	}
	// The meta item may already exist with only a discount counter.
	condition := "attribute_not_exists(#version)"
	if expectedVersion > 0 {
		condition = "#version = :expected"
		values[":expected"] = numAttr(expectedVersion)
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(c.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pkPricing},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression:          aws.String("SET #version = :next, updatedAt = :now"),
			ConditionExpression:       aws.String(condition),
			ExpressionAttributeNames:  map[string]string{"#version": "version"},
			ExpressionAttributeValues: values,
		},
	})

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: SaveTiers: %w", ErrVersionConflict)
		}
		return fmt.Errorf("repository: SaveTiers: %w", err)
	}
	return nil
}

// RecordDiscount stores a granted discount and increments the applied counter.
func (c *Client) RecordDiscount(ctx context.Context, userID string, percent int) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: RecordDiscount: user id is required")
	}
	now := c.now().UTC()

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item: map[string]types.AttributeValue{
						"PK":        &types.AttributeValueMemberS{Value: discountPK(userID)},
						"SK":        &types.AttributeValueMemberS{Value: pkPrefixDiscount + now.Format(time.RFC3339Nano)},
						"userId":    &types.AttributeValueMemberS{Value: userID},
						"percent":   numAttr(int64(percent)),
						"grantedAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
						"ttl":       numAttr(now.Add(discountTTL).Unix()),
					},
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName: aws.String(c.tableName),
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: pkPricing},
						"SK": &types.AttributeValueMemberS{Value: skMeta},
					},
					UpdateExpression: aws.String("ADD discountsApplied :one"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":one": numAttr(1),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordDiscount: %w", err)
	}
	return nil
}

func isConditionFailure(err error) bool {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, r := range canceled.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func applyMeta(table *domain.PricingTable, item map[string]types.AttributeValue) error {
	if _, ok := item["version"]; ok {
		v, err := int64Attr(item, "version")
		if err != nil {
			return err
		}
		table.Version = v
	}
	if _, ok := item["discountsApplied"]; ok {
		n, err := int64Attr(item, "discountsApplied")
		if err != nil {
			return err
		}
		table.DiscountsApplied = n
	}
	if raw, err := strAttr(item, "updatedAt"); err == nil && raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("repository: parse updatedAt: %w", err)
		}
		table.UpdatedAt = ts
	}
	return nil
}

func itemToTier(item map[string]types.AttributeValue) (domain.PriceTier, error) {
	name, err := strAttr(item, "name")
	if err != nil {
		return domain.PriceTier{}, err
	}
	minUnits, err := int64Attr(item, "minUnits")
	if err != nil {
		return domain.PriceTier{}, err
	}
	base, err := floatAttr(item, "basePrice")
	if err != nil {
		return domain.PriceTier{}, err
	}
	price, err := floatAttr(item, "price")
	if err != nil {
		return domain.PriceTier{}, err
	}
	return domain.PriceTier{Name: name, MinUnits: minUnits, BasePrice: base, Price: price}, nil
}

func tierItem(t domain.PriceTier) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pkPricing},
		"SK":        &types.AttributeValueMemberS{Value: tierSK(t.Name)},
		"name":      &types.AttributeValueMemberS{Value: t.Name},
		"minUnits":  numAttr(t.MinUnits),
		"basePrice": &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.BasePrice, 'f', -1, 64)},
		"price":     &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.Price, 'f', -1, 64)},
	}
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	raw, err := numberAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numberAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func numberAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}
