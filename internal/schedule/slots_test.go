package schedule

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bashmentarium/prescriptions/pkg/types"
)

func TestAllocateSlotsSingleDose(t *testing.T) {
	slots := AllocateSlots(1, 480, 1200, nil)
	assert.Equal(t, []int{480}, slots)

	// a single dose ignores preferred labels
	slots = AllocateSlots(1, 600, 1200, []string{types.TimeEvening})
	assert.Equal(t, []int{600}, slots)
}

func TestAllocateSlotsCount(t *testing.T) {
	for timesPerDay := 1; timesPerDay <= 8; timesPerDay++ {
		slots := AllocateSlots(timesPerDay, 480, 1200, nil)

		assert.Len(t, slots, timesPerDay, "times per day %d", timesPerDay)
		assert.True(t, sort.IntsAreSorted(slots), "times per day %d not sorted: %v", timesPerDay, slots)
		for _, s := range slots {
			assert.GreaterOrEqual(t, s, 480)
			assert.LessOrEqual(t, s, 1200)
		}
	}
}

func TestAllocateSlotsConventionalTwoAndThree(t *testing.T) {
	// 7:30 clamps up to the window start, 22:00 clamps down to the window end
	assert.Equal(t, []int{480, 1200}, AllocateSlots(2, 480, 1200, nil))

	// a wide window keeps the conventional placements
	assert.Equal(t, []int{450, 1320}, AllocateSlots(2, 400, 1380, nil))

	// three doses: 8:00, midpoint, 20:00
	assert.Equal(t, []int{480, 840, 1200}, AllocateSlots(3, 480, 1200, nil))
}

func TestAllocateSlotsConventionalWindowOutsideAnchors(t *testing.T) {
	// a late window (21:00-23:00) sits past the 8:00 and 20:00 anchors, so the
	// clamped placements collapse and three doses distribute evenly instead
	assert.Equal(t, []int{1260, 1320, 1380}, AllocateSlots(3, 1260, 1380, nil))

	// an early window (6:40-7:20) sits before both two-dose anchors
	assert.Equal(t, []int{400, 440}, AllocateSlots(2, 400, 440, nil))

	// every conventional count stays sorted and inside an arbitrary window
	for timesPerDay := 2; timesPerDay <= 3; timesPerDay++ {
		for _, window := range [][2]int{{300, 360}, {1260, 1380}, {600, 660}} {
			slots := AllocateSlots(timesPerDay, window[0], window[1], nil)

			assert.Len(t, slots, timesPerDay)
			assert.True(t, sort.IntsAreSorted(slots), "window %v: %v", window, slots)
			for _, s := range slots {
				assert.GreaterOrEqual(t, s, window[0])
				assert.LessOrEqual(t, s, window[1])
			}
		}
	}
}

func TestAllocateSlotsEvenDistributionTruncates(t *testing.T) {
	// (1200-480)/3 = 240 exactly
	assert.Equal(t, []int{480, 720, 960, 1200}, AllocateSlots(4, 480, 1200, nil))

	// (1190-480)/4 = 177 with truncation toward zero
	assert.Equal(t, []int{480, 657, 834, 1011, 1188}, AllocateSlots(5, 480, 1190, nil))
}

func TestAllocateSlotsPreferredLabels(t *testing.T) {
	slots := AllocateSlots(2, 480, 1200, []string{types.TimeMorning, types.TimeEvening})
	assert.Equal(t, []int{480, 1200}, slots)

	// more labels than doses: first timesPerDay in-window labels win
	slots = AllocateSlots(2, 480, 1320, []string{types.TimeMorning, types.TimeAfternoon, types.TimeNight})
	assert.Equal(t, []int{480, 840}, slots)
}

func TestAllocateSlotsPreferredLabelsOutOfWindow(t *testing.T) {
	// night (1320) falls outside the window and is filtered; the shortfall is
	// synthesized by subdividing the window
	slots := AllocateSlots(2, 480, 1200, []string{types.TimeMorning, types.TimeNight})
	assert.Len(t, slots, 2)
	assert.Equal(t, 480, slots[0])
	// 480 + (1200-480)/2 = 840
	assert.Equal(t, 840, slots[1])

	// no usable label at all falls back to the conventional slots
	slots = AllocateSlots(2, 480, 1200, []string{types.TimeNight})
	assert.Equal(t, []int{480, 1200}, slots)
}

func TestAllocateSlotsUnrecognizedLabel(t *testing.T) {
	// unrecognized labels map to the window start
	slots := AllocateSlots(2, 480, 1200, []string{"bedtime", types.TimeEvening})
	assert.Equal(t, []int{480, 1200}, slots)
}
