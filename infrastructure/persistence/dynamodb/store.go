// Package dynamodb persists lineages in a single DynamoDB table:
// coordinate bookkeeping under COORD#<id>, the append-only delta log under
// DELTA#<id> keyed by position, snapshots under SNAPSHOT#<id>.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"bms-backend/domain/core/entities"
	"bms-backend/domain/core/valueobjects"
	"bms-backend/domain/versioning"
	pkgerrors "bms-backend/pkg/errors"
)

const (
	coordPKPrefix    = "COORD#"
	deltaPKPrefix    = "DELTA#"
	snapshotPKPrefix = "SNAPSHOT#"
	metaSK           = "META"
	positionSKFormat = "POS#%010d"
)

// Store implements the coordinate, delta and snapshot repositories on one
// DynamoDB table.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// NewStore creates a DynamoDB-backed store
func NewStore(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// coordinateRecord is the bookkeeping row of one lineage
type coordinateRecord struct {
	PK                   string            `dynamodbav:"PK"` // COORD#<id>
	SK                   string            `dynamodbav:"SK"` // META
	CoordinateID         string            `dynamodbav:"CoordinateID"`
	Alias                string            `dynamodbav:"Alias,omitempty"`
	CreatedBy            string            `dynamodbav:"CreatedBy,omitempty"`
	Metadata             map[string]string `dynamodbav:"Metadata,omitempty"`
	CreatedAt            string            `dynamodbav:"CreatedAt"`
	UpdatedAt            string            `dynamodbav:"UpdatedAt"`
	HeadPosition         int               `dynamodbav:"HeadPosition"`
	HeadChainHash        string            `dynamodbav:"HeadChainHash,omitempty"`
	HeadStateHash        string            `dynamodbav:"HeadStateHash,omitempty"`
	LastSnapshotPosition int               `dynamodbav:"LastSnapshotPosition"`
}

// deltaRecord is one row of the append-only log
type deltaRecord struct {
	PK              string   `dynamodbav:"PK"` // DELTA#<coordinate>
	SK              string   `dynamodbav:"SK"` // POS#<position, zero padded>
	DeltaID         string   `dynamodbav:"DeltaID"`
	CoordinateID    string   `dynamodbav:"CoordinateID"`
	Position        int      `dynamodbav:"Position"`
	Ops             string   `dynamodbav:"Ops"` // canonical JSON op list
	DeltaHash       string   `dynamodbav:"DeltaHash"`
	ParentChainHash string   `dynamodbav:"ParentChainHash,omitempty"`
	ChainHash       string   `dynamodbav:"ChainHash"`
	Author          string   `dynamodbav:"Author,omitempty"`
	Tags            []string `dynamodbav:"Tags,omitempty"`
	Oversize        bool     `dynamodbav:"Oversize,omitempty"`
	CreatedAt       string   `dynamodbav:"CreatedAt"`
}

// snapshotRecord is one checkpoint row
type snapshotRecord struct {
	PK           string `dynamodbav:"PK"` // SNAPSHOT#<coordinate>
	SK           string `dynamodbav:"SK"` // POS#<position, zero padded>
	SnapshotID   string `dynamodbav:"SnapshotID"`
	CoordinateID string `dynamodbav:"CoordinateID"`
	Position     int    `dynamodbav:"Position"`
	State        string `dynamodbav:"State"` // canonical JSON
	StateHash    string `dynamodbav:"StateHash"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

// Coordinate repository

// Save persists a coordinate's bookkeeping row
func (s *Store) Save(ctx context.Context, coordinate *entities.Coordinate) error {
	record := coordinateRecord{
		PK:                   coordPKPrefix + coordinate.ID().String(),
		SK:                   metaSK,
		CoordinateID:         coordinate.ID().String(),
		Alias:                coordinate.Alias(),
		CreatedBy:            coordinate.CreatedBy(),
		Metadata:             coordinate.Metadata(),
		CreatedAt:            coordinate.CreatedAt().UTC().Format(time.RFC3339Nano),
		UpdatedAt:            coordinate.UpdatedAt().UTC().Format(time.RFC3339Nano),
		HeadPosition:         coordinate.HeadPosition(),
		HeadChainHash:        coordinate.HeadChainHash().String(),
		HeadStateHash:        coordinate.HeadStateHash().String(),
		LastSnapshotPosition: coordinate.LastSnapshotPosition(),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal coordinate", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("save coordinate", err)
	}
	return nil
}

// GetByID retrieves a coordinate by its address
func (s *Store) GetByID(ctx context.Context, id valueobjects.CoordinateID) (*entities.Coordinate, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: coordPKPrefix + id.String()},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get coordinate", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("coordinate")
	}

	var record coordinateRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal coordinate", err)
	}
	return recordToCoordinate(record)
}

// Exists reports whether an address is already occupied
func (s *Store) Exists(ctx context.Context, id valueobjects.CoordinateID) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: coordPKPrefix + id.String()},
			"SK": &types.AttributeValueMemberS{Value: metaSK},
		},
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, pkgerrors.NewDatabaseError("check coordinate", err)
	}
	return result.Item != nil, nil
}

// List retrieves coordinates ordered by address
func (s *Store) List(ctx context.Context, limit int) ([]*entities.Coordinate, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix) AND SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: coordPKPrefix},
			":meta":   &types.AttributeValueMemberS{Value: metaSK},
		},
	}

	var coordinates []*entities.Coordinate
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list coordinates", err)
		}
		for _, item := range result.Items {
			var record coordinateRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, pkgerrors.NewDatabaseError("unmarshal coordinate", err)
			}
			coordinate, err := recordToCoordinate(record)
			if err != nil {
				return nil, err
			}
			coordinates = append(coordinates, coordinate)
			if limit > 0 && len(coordinates) >= limit {
				return coordinates, nil
			}
		}
		if result.LastEvaluatedKey == nil {
			return coordinates, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Count returns the number of coordinates
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.countByPrefix(ctx, coordPKPrefix)
}

// Delta repository

// Append commits a delta. The put is conditional on the position row not
// existing, so concurrent writers racing for the same position lose cleanly.
func (s *Store) Append(ctx context.Context, delta *entities.Delta) error {
	record, err := deltaToRecord(delta)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal delta", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return pkgerrors.NewConflictError(fmt.Sprintf("position %d already occupied for coordinate %s", delta.Position(), delta.CoordinateID()))
		}
		return pkgerrors.NewDatabaseError("append delta", err)
	}
	return nil
}

// GetRange retrieves deltas with position in [from, to], ascending
func (s *Store) GetRange(ctx context.Context, id valueobjects.CoordinateID, from, to int) ([]*entities.Delta, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: deltaPKPrefix + id.String()},
			":from": &types.AttributeValueMemberS{Value: fmt.Sprintf(positionSKFormat, from)},
			":to":   &types.AttributeValueMemberS{Value: fmt.Sprintf(positionSKFormat, to)},
		},
		ScanIndexForward: aws.Bool(true),
	}
	return s.queryDeltas(ctx, input)
}

// GetAll retrieves the full chain from genesis, ascending
func (s *Store) GetAll(ctx context.Context, id valueobjects.CoordinateID) ([]*entities.Delta, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: deltaPKPrefix + id.String()},
		},
		ScanIndexForward: aws.Bool(true),
	}
	return s.queryDeltas(ctx, input)
}

// GetByPosition retrieves a single delta
func (s *Store) GetByPosition(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Delta, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: deltaPKPrefix + id.String()},
			"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf(positionSKFormat, position)},
		},
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get delta", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.NewNotFoundError("delta")
	}

	var record deltaRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal delta", err)
	}
	return recordToDelta(record)
}

// CountDeltas returns the number of deltas across all coordinates
func (s *Store) CountDeltas(ctx context.Context) (int, error) {
	return s.countByPrefix(ctx, deltaPKPrefix)
}

func (s *Store) queryDeltas(ctx context.Context, input *dynamodb.QueryInput) ([]*entities.Delta, error) {
	var deltas []*entities.Delta
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("query deltas", err)
		}
		for _, item := range result.Items {
			var record deltaRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, pkgerrors.NewDatabaseError("unmarshal delta", err)
			}
			delta, err := recordToDelta(record)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, delta)
		}
		if result.LastEvaluatedKey == nil {
			return deltas, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Snapshot repository

// SaveSnapshot persists a checkpoint row
func (s *Store) SaveSnapshot(ctx context.Context, snapshot *entities.Snapshot) error {
	canonical, err := snapshot.State().CanonicalBytes()
	if err != nil {
		return err
	}
	record := snapshotRecord{
		PK:           snapshotPKPrefix + snapshot.CoordinateID().String(),
		SK:           fmt.Sprintf(positionSKFormat, snapshot.Position()),
		SnapshotID:   snapshot.ID(),
		CoordinateID: snapshot.CoordinateID().String(),
		Position:     snapshot.Position(),
		State:        string(canonical),
		StateHash:    snapshot.StateHash().String(),
		CreatedAt:    snapshot.CreatedAt().UTC().Format(time.RFC3339Nano),
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return pkgerrors.NewDatabaseError("marshal snapshot", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("save snapshot", err)
	}
	return nil
}

// GetLatestAtOrBefore retrieves the most recent checkpoint at or before a
// position, nil when none exists.
func (s *Store) GetLatestAtOrBefore(ctx context.Context, id valueobjects.CoordinateID, position int) (*entities.Snapshot, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK <= :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: snapshotPKPrefix + id.String()},
			":sk": &types.AttributeValueMemberS{Value: fmt.Sprintf(positionSKFormat, position)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query snapshots", err)
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(result.Items[0], &record); err != nil {
		return nil, pkgerrors.NewDatabaseError("unmarshal snapshot", err)
	}
	return recordToSnapshot(record)
}

// CountSnapshots returns the number of snapshots across all coordinates
func (s *Store) CountSnapshots(ctx context.Context) (int, error) {
	return s.countByPrefix(ctx, snapshotPKPrefix)
}

func (s *Store) countByPrefix(ctx context.Context, prefix string) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		Select:           types.SelectCount,
		FilterExpression: aws.String("begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}

	total := 0
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return 0, pkgerrors.NewDatabaseError("count items", err)
		}
		total += int(result.Count)
		if result.LastEvaluatedKey == nil {
			return total, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// Record conversions

func recordToCoordinate(record coordinateRecord) (*entities.Coordinate, error) {
	id, err := valueobjects.ParseCoordinateID(record.CoordinateID)
	if err != nil {
		return nil, err
	}
	headChainHash, err := valueobjects.ParseHash(record.HeadChainHash)
	if err != nil {
		return nil, err
	}
	headStateHash, err := valueobjects.ParseHash(record.HeadStateHash)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse coordinate timestamps", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, record.UpdatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse coordinate timestamps", err)
	}
	return entities.ReconstructCoordinate(id, record.Alias, record.CreatedBy, record.Metadata,
		createdAt, updatedAt, record.HeadPosition, headChainHash, headStateHash,
		record.LastSnapshotPosition)
}

func deltaToRecord(delta *entities.Delta) (*deltaRecord, error) {
	ops, err := versioning.OpsCanonicalBytes(delta.Ops())
	if err != nil {
		return nil, err
	}
	return &deltaRecord{
		PK:              deltaPKPrefix + delta.CoordinateID().String(),
		SK:              fmt.Sprintf(positionSKFormat, delta.Position()),
		DeltaID:         delta.ID(),
		CoordinateID:    delta.CoordinateID().String(),
		Position:        delta.Position(),
		Ops:             string(ops),
		DeltaHash:       delta.DeltaHash().String(),
		ParentChainHash: delta.ParentChainHash().String(),
		ChainHash:       delta.ChainHash().String(),
		Author:          delta.Author(),
		Tags:            delta.Tags(),
		Oversize:        delta.Oversize(),
		CreatedAt:       delta.CreatedAt().UTC().Format(time.RFC3339Nano),
	}, nil
}

func recordToDelta(record deltaRecord) (*entities.Delta, error) {
	id, err := valueobjects.ParseCoordinateID(record.CoordinateID)
	if err != nil {
		return nil, err
	}
	ops, err := versioning.ParseOps([]byte(record.Ops))
	if err != nil {
		return nil, err
	}
	deltaHash, err := valueobjects.ParseHash(record.DeltaHash)
	if err != nil {
		return nil, err
	}
	parentHash, err := valueobjects.ParseHash(record.ParentChainHash)
	if err != nil {
		return nil, err
	}
	chainHash, err := valueobjects.ParseHash(record.ChainHash)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse delta timestamp", err)
	}
	return entities.ReconstructDelta(record.DeltaID, id, record.Position, ops,
		deltaHash, parentHash, chainHash, record.Author, record.Tags, record.Oversize, createdAt)
}

func recordToSnapshot(record snapshotRecord) (*entities.Snapshot, error) {
	id, err := valueobjects.ParseCoordinateID(record.CoordinateID)
	if err != nil {
		return nil, err
	}
	state, err := valueobjects.ParseState([]byte(record.State))
	if err != nil {
		return nil, err
	}
	stateHash, err := valueobjects.ParseHash(record.StateHash)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, record.CreatedAt)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("parse snapshot timestamp", err)
	}
	return entities.ReconstructSnapshot(record.SnapshotID, id, record.Position, state, stateHash, createdAt)
}
