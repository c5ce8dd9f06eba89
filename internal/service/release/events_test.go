package release

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
)

type recordingPublisher struct {
	topics []string
	events []Event
}

func (p *recordingPublisher) Publish(projectKey string, ev Event) {
	p.topics = append(p.topics, projectKey)
	p.events = append(p.events, ev)
}

func TestReleasePublishesEvents(t *testing.T) {
	f := newFixture(t)
	f.seedProject(t)
	pub := &recordingPublisher{}
	f.svc = f.svc.WithPublisher(pub)
	ctx := context.Background()

	res, err := f.release(ctx, false, Target{AppKey: "dd-fe", Version: "1-0"})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, "dd", pub.topics[0])
	assert.Equal(t, EventRelease, ev.Type)
	assert.Equal(t, res.ReleaseID, ev.ReleaseID)
	assert.Equal(t, "test", ev.Environment)
	assert.Empty(t, ev.Error)
	require.Len(t, ev.Deployments, 1)
	assert.Equal(t, "dd-fe", ev.Deployments[0].AppKey)

	_, err = f.release(ctx, false, Target{AppKey: "dd", Version: "1-0"}, Target{AppKey: "dd-fe", Version: "1-0"})
	require.ErrorIs(t, err, domain.ErrVersionRedeploy)
	require.Len(t, pub.events, 2)
	assert.Len(t, pub.events[1].Deployments, 1)
	assert.NotEmpty(t, pub.events[1].Error)

	_, err = f.release(ctx, false, Target{AppKey: "dd-fe", Version: "1-0"})
	require.Error(t, err)
	assert.Len(t, pub.events, 2, "a release that committed nothing emits no event")
}
