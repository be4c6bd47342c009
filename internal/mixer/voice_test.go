package mixer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoicePoolGrowthKeepsIndices(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	require.Len(t, s.Voices(), voiceClusterSize)

	first := s.Voices()[0]
	oldView := s.Voices()

	s.AllocVoices(voiceClusterSize)
	require.Len(t, s.Voices(), 2*voiceClusterSize)

	// Voices never move: the old index array still points at live voices.
	assert.Same(t, first, s.Voices()[0])
	assert.Same(t, oldView[voiceClusterSize-1], s.Voices()[voiceClusterSize-1])
	for i, v := range s.Voices() {
		assert.Equal(t, i, v.Index())
	}
}

func TestFreeVoiceGrowsWhenExhausted(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	for i, v := range s.Voices() {
		v.sourceID.Store(uint32(i + 1))
	}
	v := s.FreeVoice()
	require.NotNil(t, v)
	assert.Equal(t, uint32(0), v.SourceID())
	assert.Len(t, s.Voices(), 2*voiceClusterSize)
}

// A snapshot published during a mix must be visible no later than the next
// mix and never torn: the consumer may only ever observe whole snapshots
// with non-decreasing tags.
func TestSnapshotPublishNeverTearsOrRegresses(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	v := s.Voices()[0]

	const publishes = 20000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= publishes; i++ {
			gain := float32(i)
			v.Publish(s, &Props{Seq: uint64(i), Gain: gain, Pitch: gain})
		}
	}()

	// Single consumer, standing in for the render thread.
	prev := uint64(0)
	for prev < publishes {
		v.pickupProps(s)
		p := v.props
		if p.Seq == 0 {
			continue
		}
		assert.GreaterOrEqual(t, p.Seq, prev, "snapshot tag went backwards")
		// Tearing would let Gain and Pitch disagree.
		assert.Equal(t, p.Gain, p.Pitch, "torn snapshot observed")
		prev = p.Seq
	}
	wg.Wait()
	assert.Equal(t, uint64(publishes), prev)
}

func TestPropsItemsRecycle(t *testing.T) {
	s := NewScene()
	s.AllocVoices(1)
	v := s.Voices()[0]

	v.Publish(s, &Props{Seq: 1})
	v.pickupProps(s)
	recycled := s.freeProps.Load()
	require.NotNil(t, recycled)

	// The next publish reuses the freed item rather than allocating.
	v.Publish(s, &Props{Seq: 2})
	assert.Same(t, recycled, v.pending.Load())
}
