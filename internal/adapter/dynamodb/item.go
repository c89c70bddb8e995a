package dynamodb

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table layout: partition key is the collection, sort key the document id.
// The JSON body is kept as a native map under "doc" so filters can address
// its fields, and "version" counts writes for optimistic concurrency.
const (
	attrCollection = "collection"
	attrID         = "id"
	attrDoc        = "doc"
	attrVersion    = "version"
)

type item struct {
	Collection string         `dynamodbav:"collection"`
	ID         string         `dynamodbav:"id"`
	Doc        map[string]any `dynamodbav:"doc"`
	Version    int64          `dynamodbav:"version"`
}

func key(collection, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrCollection: &types.AttributeValueMemberS{Value: collection},
		attrID:         &types.AttributeValueMemberS{Value: id},
	}
}

// encodeItem converts a document body into a DynamoDB item at version.
func encodeItem(collection, id string, data any, version int64) (map[string]types.AttributeValue, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s/%s: %w", collection, id, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("document %s/%s is not an object: %w", collection, id, err)
	}
	av, err := attributevalue.MarshalMap(item{Collection: collection, ID: id, Doc: doc, Version: version})
	if err != nil {
		return nil, fmt.Errorf("marshalling %s/%s: %w", collection, id, err)
	}
	return av, nil
}

// decodeItem returns the id, JSON body and version of a stored item.
func decodeItem(av map[string]types.AttributeValue) (string, []byte, int64, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return "", nil, 0, fmt.Errorf("unmarshalling item: %w", err)
	}
	body, err := json.Marshal(it.Doc)
	if err != nil {
		return "", nil, 0, fmt.Errorf("encoding %s/%s: %w", it.Collection, it.ID, err)
	}
	return it.ID, body, it.Version, nil
}

func versionValue(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}
