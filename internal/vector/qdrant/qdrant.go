package qdrant

import (
	"context"
	"fmt"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/documind/documind/internal/vector"
)

// Payload keys for chunk provenance.
const (
	keyText        = "text"
	keyDocumentID  = "document_id"
	keyDisplayName = "display_name"
	keyPage        = "page"
	keyChunkIndex  = "chunk_index"
	keyChunkID     = "chunk_id"
)

const scrollPageSize = 256

// Index implements vector.Index backed by Qdrant. One collection holds the
// chunks of every document, distinguished by payload metadata.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// New connects to Qdrant and ensures the collection exists with cosine
// distance. An existing collection is reused as-is; the metric is fixed at
// creation time and never silently changed.
func New(ctx context.Context, host string, port int, collection string, dimension int) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	idx := &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
	if err := idx.ensureCollection(ctx, uint64(dimension)); err != nil {
		conn.Close()
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureCollection(ctx context.Context, size uint64) error {
	resp, err := i.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range resp.GetCollections() {
		if c.GetName() == i.collection {
			return nil
		}
	}

	_, err = i.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     size,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", i.collection, err)
	}
	return nil
}

func (i *Index) Upsert(ctx context.Context, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(entries))
	for n, e := range entries {
		payload := map[string]*pb.Value{
			keyText:        {Kind: &pb.Value_StringValue{StringValue: e.Text}},
			keyDocumentID:  {Kind: &pb.Value_StringValue{StringValue: e.Metadata.DocumentID}},
			keyDisplayName: {Kind: &pb.Value_StringValue{StringValue: e.Metadata.DisplayName}},
			keyPage:        {Kind: &pb.Value_IntegerValue{IntegerValue: int64(e.Metadata.Page)}},
			keyChunkIndex:  {Kind: &pb.Value_IntegerValue{IntegerValue: int64(e.Metadata.ChunkIndex)}},
			keyChunkID:     {Kind: &pb.Value_StringValue{StringValue: vector.ChunkKey(e.Metadata.DocumentID, e.Metadata.Page, e.Metadata.ChunkIndex)}},
		}
		points[n] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}}},
			Payload: payload,
		}
	}

	// wait=true so the upsert is visible as one unit before ingest returns.
	wait := true
	_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (i *Index) Search(ctx context.Context, vec []float32, topK int, documentIDs []string) ([]vector.SearchResult, error) {
	resp, err := i.points.Search(ctx, &pb.SearchPoints{
		CollectionName: i.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		Filter:         documentFilter(documentIDs),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]vector.SearchResult, len(resp.GetResult()))
	for n, pt := range resp.GetResult() {
		results[n] = vector.SearchResult{
			ID:       pt.GetId().GetUuid(),
			Score:    pt.GetScore(),
			Text:     pt.GetPayload()[keyText].GetStringValue(),
			Metadata: payloadMetadata(pt.GetPayload()),
		}
	}
	return results, nil
}

func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: documentFilter([]string{documentID}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete document %s: %w", documentID, err)
	}
	return nil
}

// ListDocuments scans stored payloads; the index itself is the registry of
// what is queryable, so no separate document table exists.
func (i *Index) ListDocuments(ctx context.Context) ([]vector.DocumentRef, error) {
	seen := make(map[string]string)

	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	for {
		resp, err := i.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: i.collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}

		for _, pt := range resp.GetResult() {
			meta := payloadMetadata(pt.GetPayload())
			if meta.DocumentID == "" {
				continue
			}
			if _, ok := seen[meta.DocumentID]; !ok {
				seen[meta.DocumentID] = meta.DisplayName
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}

	refs := make([]vector.DocumentRef, 0, len(seen))
	for id, name := range seen {
		refs = append(refs, vector.DocumentRef{DocumentID: id, DisplayName: name})
	}
	sort.Slice(refs, func(a, b int) bool { return refs[a].DocumentID < refs[b].DocumentID })
	return refs, nil
}

func (i *Index) Close() error {
	return i.conn.Close()
}

// documentFilter builds a hard keyword filter on document_id. A nil or empty
// id set means no filter at all.
func documentFilter(documentIDs []string) *pb.Filter {
	if len(documentIDs) == 0 {
		return nil
	}
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: keyDocumentID,
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: documentIDs},
						},
					},
				},
			},
		}},
	}
}

func payloadMetadata(payload map[string]*pb.Value) vector.Metadata {
	return vector.Metadata{
		DocumentID:  payload[keyDocumentID].GetStringValue(),
		DisplayName: payload[keyDisplayName].GetStringValue(),
		Page:        int(payload[keyPage].GetIntegerValue()),
		ChunkIndex:  int(payload[keyChunkIndex].GetIntegerValue()),
	}
}

var _ vector.Index = (*Index)(nil)
