package service

import (
	"github.com/google/uuid"
	"media-orchestrator/entities"
)

// Flow tests in service_test drive the handlers against these fakes.

var NewMemoryRepo = newMemoryRepo

type RecordingPublisher = recordingPublisher

func (r *memoryRepo) StoredMedia(id uuid.UUID) (entities.Media, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.media[id]
	return m, ok
}

func (r *memoryRepo) StoredJob(id uuid.UUID) (entities.UnboxingJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Sent returns the queue and body of every published message, in order.
func (p *recordingPublisher) Sent() (queues []string, bodies [][]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sent {
		queues = append(queues, s.queue)
		bodies = append(bodies, s.msg.Body)
	}
	return queues, bodies
}
