package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	"repokit/internal/infrastructure/persistence/memory"
	"repokit/internal/query"
	"repokit/internal/repository"
	"repokit/internal/specification"
)

type mockEventBridge struct {
	mock.Mock
}

func (m *mockEventBridge) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func events(n int) []ChangeEvent {
	out := make([]ChangeEvent, n)
	for i := range out {
		out[i] = ChangeEvent{Kind: KindAdded, Entity: "Product", ID: int64(i + 1), Version: 1, OccurredAt: time.Unix(0, 0).UTC()}
	}
	return out
}

func TestEventBridgePublisher_BatchesOfTen(t *testing.T) {
	client := new(mockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{}, nil)
	p := NewEventBridgePublisher(client, "bus", "repokit", zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), events(23)))

	client.AssertNumberOfCalls(t, "PutEvents", 3)
	first := client.Calls[0].Arguments.Get(1).(*eventbridge.PutEventsInput)
	require.Len(t, first.Entries, 10)
	assert.Equal(t, "Product.Added", aws.ToString(first.Entries[0].DetailType))
	assert.Equal(t, "bus", aws.ToString(first.Entries[0].EventBusName))

	var detail ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(first.Entries[0].Detail)), &detail))
	assert.Equal(t, int64(1), detail.ID)

	last := client.Calls[2].Arguments.Get(1).(*eventbridge.PutEventsInput)
	assert.Len(t, last.Entries, 3)
}

func TestEventBridgePublisher_FailedEntries(t *testing.T) {
	client := new(mockEventBridge)
	client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException")}},
	}, nil)
	p := NewEventBridgePublisher(client, "bus", "repokit", zap.NewNop())

	err := p.Publish(context.Background(), events(1))
	assert.EqualError(t, err, "1 events failed to publish")
}

type part struct {
	entity.Base
	Name string
}

type recordingPublisher struct {
	published [][]ChangeEvent
	err       error
}

func (r *recordingPublisher) Publish(_ context.Context, events []ChangeEvent) error {
	r.published = append(r.published, events)
	return r.err
}

func TestPublishingSession_AnnouncesCommittedChanges(t *testing.T) {
	pub := &recordingPublisher{}
	store := memory.NewStore[*part]()
	repo := repository.New(repository.Decorate[*part](store, Publishing[*part](pub, zap.NewNop())))
	ctx := context.Background()
	name := specification.NewField("name", func(p *part) string { return p.Name })

	id, err := repo.Add(ctx, &part{Name: "bolt"})
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, name.Eq("bolt"), func(p *part) { p.Name = "nut" }, query.Options[*part]{}))
	require.NoError(t, repo.Delete(ctx, name.Eq("nut")))

	require.Len(t, pub.published, 3)
	kinds := make([]string, 0, 3)
	for _, batch := range pub.published {
		require.Len(t, batch, 1)
		assert.Equal(t, id, batch[0].ID)
		assert.Equal(t, "part", batch[0].Entity)
		kinds = append(kinds, batch[0].Kind)
	}
	assert.Equal(t, []string{KindAdded, KindModified, KindRemoved}, kinds)
	assert.Equal(t, uint32(2), pub.published[1][0].Version)
}

func TestPublishingSession_PublishFailureDoesNotFailSave(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("bus down")}
	store := memory.NewStore[*part]()
	repo := repository.New(repository.Decorate[*part](store, Publishing[*part](pub, zap.NewNop())))

	_, err := repo.Add(context.Background(), &part{Name: "bolt"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Len(t, pub.published, 1)
}

func TestPublishingSession_RemovingStagedAddPublishesNothing(t *testing.T) {
	pub := &recordingPublisher{}
	store := memory.NewStore[*part]()
	s := Publishing[*part](pub, zap.NewNop())(mustOpen(t, store))

	p := &part{Name: "temp"}
	s.Add(p)
	s.Remove(p)
	n, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.published)
}

func mustOpen(t *testing.T, store *memory.Store[*part]) repository.Session[*part] {
	t.Helper()
	s, err := store.Open(context.Background())
	require.NoError(t, err)
	return s
}
