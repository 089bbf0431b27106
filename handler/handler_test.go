package handler

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"media-orchestrator/config"
	"media-orchestrator/constant"
	"media-orchestrator/dto"
	"media-orchestrator/entities"
	"media-orchestrator/pkg/rabbitmq"
	"media-orchestrator/repository"
	"media-orchestrator/service"
	"sync"
	"testing"
)

var testQueues = config.Queues{
	UploadNotifications:    "upload-notifications",
	UploadRetry:            "upload-retry",
	UploadDLQ:              "upload-dlq",
	BeginUnboxing:          "begin-unboxing",
	UnboxingCompleted:      "unboxing-completed",
	UnboxingCompletedRetry: "unboxing-completed-retry",
	UnboxingCompletedDLQ:   "unboxing-completed-dlq",
}

type stubMediaService struct {
	onboardFn  func(ctx context.Context, key entities.MediaKey) (entities.Media, error)
	completeFn func(ctx context.Context, event dto.CompletedEvent) (entities.Media, error)

	mu        sync.Mutex
	onboarded []entities.MediaKey
	completed []dto.CompletedEvent
}

func (s *stubMediaService) Onboard(ctx context.Context, key entities.MediaKey) (entities.Media, error) {
	s.mu.Lock()
	s.onboarded = append(s.onboarded, key)
	s.mu.Unlock()
	if s.onboardFn != nil {
		return s.onboardFn(ctx, key)
	}
	return entities.NewMedia(key), nil
}

func (s *stubMediaService) OnUnboxingComplete(ctx context.Context, event dto.CompletedEvent) (entities.Media, error) {
	s.mu.Lock()
	s.completed = append(s.completed, event)
	s.mu.Unlock()
	if s.completeFn != nil {
		return s.completeFn(ctx, event)
	}
	return entities.Media{Unboxed: true}, nil
}

func (s *stubMediaService) FindAll(context.Context, int, int) (entities.Page[entities.Media], error) {
	return entities.Page[entities.Media]{}, nil
}

type published struct {
	queue string
	msg   rabbitmq.Message
}

type recordingPublisher struct {
	err  error
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, queue string, msg rabbitmq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{queue: queue, msg: msg})
	return nil
}

func newDeps(svc *stubMediaService, pub *recordingPublisher) ServiceDependencies {
	return ServiceDependencies{MediaService: svc, Publisher: pub, Queues: testQueues}
}

func uploadDelivery(fullKey string, headers amqp.Table) amqp.Delivery {
	body := fmt.Sprintf(`{"EventName":"s3:ObjectCreated:Put","Key":%q,"Records":[]}`, fullKey)
	return amqp.Delivery{
		RoutingKey:  testQueues.UploadNotifications,
		ContentType: constant.ContentTypeJSON,
		Headers:     headers,
		Body:        []byte(body),
	}
}

var movieID = uuid.MustParse("4f1c2a36-8c53-4b8e-9a4e-7b9d0f1e2c3d")

func validFullKey() string {
	return "raw/uploaded/" + movieID.String() + "_movie.mkv"
}

func headerCount(t *testing.T, msg rabbitmq.Message) int {
	t.Helper()
	n, err := rabbitmq.RetryCount(msg.Headers)
	require.NoError(t, err)
	return n
}

func TestUploadHandler_Success(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}

	err := UploadHandler(context.Background(), uploadDelivery(validFullKey(), nil), newDeps(svc, pub))
	require.NoError(t, err)

	require.Len(t, svc.onboarded, 1)
	assert.Equal(t, entities.MediaKey{ID: movieID, Name: "movie.mkv"}, svc.onboarded[0])
	assert.Empty(t, pub.sent)
}

func TestUploadHandler_ExhaustedRetriesGoToDLQ(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: int32(4)})

	err := UploadHandler(context.Background(), msg, newDeps(svc, pub))
	require.NoError(t, err)

	assert.Empty(t, svc.onboarded)
	require.Len(t, pub.sent, 1)
	assert.Equal(t, testQueues.UploadDLQ, pub.sent[0].queue)
	assert.Equal(t, 4, headerCount(t, pub.sent[0].msg))
	assert.Equal(t, msg.Body, pub.sent[0].msg.Body)
}

func TestUploadHandler_LastAllowedAttemptIsProcessed(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: int32(constant.MaxRetries)})

	require.NoError(t, UploadHandler(context.Background(), msg, newDeps(svc, pub)))
	assert.Len(t, svc.onboarded, 1)
	assert.Empty(t, pub.sent)
}

func TestUploadHandler_UndecodableMessagesGoToDLQ(t *testing.T) {
	cases := map[string]amqp.Delivery{
		"unparsable key":    uploadDelivery("raw/uploaded/not-a-key.mkv", amqp.Table{constant.RetryCountHeader: int32(2)}),
		"dash separator":    uploadDelivery("raw/uploaded/"+movieID.String()+"-movie.mkv", amqp.Table{constant.RetryCountHeader: int32(2)}),
		"no path separator": uploadDelivery(movieID.String()+"_movie.mkv", amqp.Table{constant.RetryCountHeader: int32(2)}),
		"trailing slash":    uploadDelivery("raw/uploaded/", amqp.Table{constant.RetryCountHeader: int32(2)}),
		"missing key":       {RoutingKey: "upload-notifications", Headers: amqp.Table{constant.RetryCountHeader: int32(2)}, Body: []byte(`{"EventName":"s3:ObjectCreated:Put"}`)},
		"malformed json":    {RoutingKey: "upload-notifications", Headers: amqp.Table{constant.RetryCountHeader: int32(2)}, Body: []byte(`{"Key":`)},
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			svc, pub := &stubMediaService{}, &recordingPublisher{}

			require.NoError(t, UploadHandler(context.Background(), msg, newDeps(svc, pub)))

			assert.Empty(t, svc.onboarded)
			require.Len(t, pub.sent, 1)
			assert.Equal(t, testQueues.UploadDLQ, pub.sent[0].queue)
			assert.Equal(t, 2, headerCount(t, pub.sent[0].msg))
			assert.Equal(t, msg.Body, pub.sent[0].msg.Body)
		})
	}
}

func TestUploadHandler_RecoverableFailureIsRetried(t *testing.T) {
	svc := &stubMediaService{onboardFn: func(context.Context, entities.MediaKey) (entities.Media, error) {
		return entities.Media{}, &service.MediaError{Op: "onboard", Reason: "could not save raw media", Recoverable: true, Err: errors.New("connection reset")}
	}}
	pub := &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: int32(1), "x-trace": "abc"})

	require.NoError(t, UploadHandler(context.Background(), msg, newDeps(svc, pub)))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, testQueues.UploadRetry, pub.sent[0].queue)
	assert.Equal(t, 2, headerCount(t, pub.sent[0].msg))
	assert.Equal(t, "abc", pub.sent[0].msg.Headers["x-trace"])
	assert.Equal(t, msg.Body, pub.sent[0].msg.Body)
	// the delivery itself is not modified
	assert.Equal(t, int32(1), msg.Headers[constant.RetryCountHeader])
}

func TestUploadHandler_FirstRecoverableFailureStartsCounting(t *testing.T) {
	svc := &stubMediaService{onboardFn: func(context.Context, entities.MediaKey) (entities.Media, error) {
		return entities.Media{}, errors.New("unclassified")
	}}
	pub := &recordingPublisher{}

	require.NoError(t, UploadHandler(context.Background(), uploadDelivery(validFullKey(), nil), newDeps(svc, pub)))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, testQueues.UploadRetry, pub.sent[0].queue)
	assert.Equal(t, 1, headerCount(t, pub.sent[0].msg))
}

func TestUploadHandler_NonRecoverableFailureGoesToDLQ(t *testing.T) {
	svc := &stubMediaService{onboardFn: func(context.Context, entities.MediaKey) (entities.Media, error) {
		return entities.Media{}, &service.MediaError{Op: "onboard", Reason: "raw media already unboxed", Recoverable: false, Err: entities.ErrAlreadyUnboxed}
	}}
	pub := &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: "3"})

	require.NoError(t, UploadHandler(context.Background(), msg, newDeps(svc, pub)))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, testQueues.UploadDLQ, pub.sent[0].queue)
	assert.Equal(t, 3, headerCount(t, pub.sent[0].msg))
}

func TestUploadHandler_UnreadableHeaderCountsAsFirstAttempt(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: "many"})

	require.NoError(t, UploadHandler(context.Background(), msg, newDeps(svc, pub)))
	assert.Len(t, svc.onboarded, 1)
}

func TestUploadHandler_RoutingFailureIsReturned(t *testing.T) {
	svc := &stubMediaService{onboardFn: func(context.Context, entities.MediaKey) (entities.Media, error) {
		return entities.Media{}, errors.New("unclassified")
	}}
	pub := &recordingPublisher{err: fmt.Errorf("%w: channel closed", rabbitmq.ErrPublishIO)}

	err := UploadHandler(context.Background(), uploadDelivery(validFullKey(), nil), newDeps(svc, pub))
	require.ErrorIs(t, err, rabbitmq.ErrPublishIO)
}

func completedDelivery(body string, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{RoutingKey: testQueues.UnboxingCompleted, Headers: headers, Body: []byte(body)}
}

const completedBody = `{
	"jobId": "11111111-2222-3333-4444-555555555555",
	"videos": [{"filename": "video_0.mp4", "codec": "h264", "width": 1920, "height": 1080}],
	"audio": [{"filename": "audio_0.aac", "codec": "aac", "lang": "eng"}],
	"subtitles": [{"filename": "sub_0.vtt", "codec": "webvtt", "lang": "eng"}],
	"outputPrefix": "raw/unboxed/x"
}`

func TestUnboxingCompletedHandler_Success(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}

	require.NoError(t, UnboxingCompletedHandler(context.Background(), completedDelivery(completedBody, nil), newDeps(svc, pub)))

	require.Len(t, svc.completed, 1)
	event := svc.completed[0]
	assert.Equal(t, uuid.MustParse("11111111-2222-3333-4444-555555555555"), event.JobId)
	files := event.ToUnboxedFiles()
	assert.Equal(t, []entities.Video{{Filename: "video_0.mp4", Codec: "h264", Width: 1920, Height: 1080}}, files.Videos)
	assert.Equal(t, "eng", files.Audio[0].Lang)
	assert.Equal(t, "webvtt", files.Subtitles[0].Codec)
	assert.Empty(t, pub.sent)
}

func TestUnboxingCompletedHandler_ConflictIsRetried(t *testing.T) {
	svc := &stubMediaService{completeFn: func(context.Context, dto.CompletedEvent) (entities.Media, error) {
		return entities.Media{}, &service.MediaError{
			Op: "complete unboxing", Reason: "could not update raw media", Recoverable: true,
			Err: &repository.ConflictError{Entity: "RawMedia", ExpectedVersion: 1, AttemptedVersion: 2},
		}
	}}
	pub := &recordingPublisher{}

	require.NoError(t, UnboxingCompletedHandler(context.Background(), completedDelivery(completedBody, nil), newDeps(svc, pub)))

	require.Len(t, pub.sent, 1)
	assert.Equal(t, testQueues.UnboxingCompletedRetry, pub.sent[0].queue)
	assert.Equal(t, 1, headerCount(t, pub.sent[0].msg))
}

func TestUnboxingCompletedHandler_DeadLetters(t *testing.T) {
	nonRecoverable := func(context.Context, dto.CompletedEvent) (entities.Media, error) {
		return entities.Media{}, &service.MediaError{Op: "complete unboxing", Recoverable: false, Err: entities.ErrAlreadyUnboxed}
	}
	cases := []struct {
		name       string
		msg        amqp.Delivery
		completeFn func(context.Context, dto.CompletedEvent) (entities.Media, error)
		invoked    bool
	}{
		{name: "exhausted", msg: completedDelivery(completedBody, amqp.Table{constant.RetryCountHeader: int64(4)})},
		{name: "malformed json", msg: completedDelivery(`[]`, nil)},
		{name: "missing job id", msg: completedDelivery(`{"videos":[]}`, nil)},
		{name: "track without filename", msg: completedDelivery(`{"jobId":"11111111-2222-3333-4444-555555555555","videos":[{"codec":"h264"}]}`, nil)},
		{name: "already unboxed", msg: completedDelivery(completedBody, nil), completeFn: nonRecoverable, invoked: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, pub := &stubMediaService{completeFn: tc.completeFn}, &recordingPublisher{}

			require.NoError(t, UnboxingCompletedHandler(context.Background(), tc.msg, newDeps(svc, pub)))

			assert.Equal(t, tc.invoked, len(svc.completed) == 1)
			require.Len(t, pub.sent, 1)
			assert.Equal(t, testQueues.UnboxingCompletedDLQ, pub.sent[0].queue)
		})
	}
}

func TestDeadLetterHandler_Acknowledges(t *testing.T) {
	svc, pub := &stubMediaService{}, &recordingPublisher{}
	msg := uploadDelivery(validFullKey(), amqp.Table{constant.RetryCountHeader: int32(4)})
	msg.RoutingKey = testQueues.UploadDLQ

	require.NoError(t, DeadLetterHandler(context.Background(), msg, newDeps(svc, pub)))
	assert.Empty(t, svc.onboarded)
	assert.Empty(t, pub.sent)
}
