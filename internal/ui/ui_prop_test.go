package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/state"
)

func TestPropertyGroupDisplay(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("targets are grouped by group name", prop.ForAll(
		func(groupCount int, targetsPerGroup int) bool {
			snapshot := make([]state.TargetStatus, 0, groupCount*targetsPerGroup)
			for g := 0; g < groupCount; g++ {
				for i := 0; i < targetsPerGroup; i++ {
					snapshot = append(snapshot, state.TargetStatus{
						Name:    targetName(g, i),
						Address: address(g, i),
						Group:   groupName(g),
						Status:  state.StatusOK,
					})
				}
			}

			groups := groupTargets(snapshot)
			if len(groups) != groupCount {
				return false
			}
			for _, group := range groups {
				if len(group.Targets) != targetsPerGroup {
					return false
				}
				for _, target := range group.Targets {
					if target.Group != group.Name {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 10),
	))

	props.Property("default group appears first", prop.ForAll(
		func(namedGroupCount int) bool {
			snapshot := []state.TargetStatus{{Name: "ungrouped", Address: "192.0.2.1"}}
			for i := 0; i < namedGroupCount; i++ {
				snapshot = append(snapshot, state.TargetStatus{
					Name:    targetName(i, 0),
					Address: address(i, 0),
					Group:   groupName(i),
				})
			}
			groups := groupTargets(snapshot)
			return len(groups) == namedGroupCount+1 && groups[0].Name == "default"
		},
		gen.IntRange(1, 10),
	))

	props.Property("targets within a group are sorted by name", prop.ForAll(
		func(targetCount int) bool {
			snapshot := make([]state.TargetStatus, targetCount)
			for i := 0; i < targetCount; i++ {
				snapshot[i] = state.TargetStatus{
					Name:  string(rune('z' - i)),
					Group: "edge",
				}
			}
			groups := groupTargets(snapshot)
			if len(groups) != 1 {
				return false
			}
			for i := 1; i < len(groups[0].Targets); i++ {
				if groups[0].Targets[i-1].Name > groups[0].Targets[i].Name {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 20),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPropertyRTTBar(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	props.Property("bar length is proportional to RTT and scale", prop.ForAll(
		func(rttMs int, scale int, width int) bool {
			target := state.TargetStatus{LastRTT: time.Duration(rttMs) * time.Millisecond}
			bar := buildBar(target, scale, width)

			expectedUnits := rttMs / scale
			if expectedUnits > width {
				expectedUnits = width
			}
			hashCount := strings.Count(bar, "#")
			if len(bar) != width || hashCount+strings.Count(bar, " ") != width {
				return false
			}
			return hashCount >= expectedUnits-1 && hashCount <= expectedUnits+1
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 100),
		gen.IntRange(1, 100),
	))

	props.Property("bar is blank without a reply", prop.ForAll(
		func(width int) bool {
			blank := strings.Repeat(" ", width)
			return buildBar(state.TargetStatus{}, 10, width) == blank &&
				buildBar(state.TargetStatus{LastRTT: -time.Millisecond}, 10, width) == blank
		},
		gen.IntRange(1, 100),
	))

	props.Property("bar is capped at width", prop.ForAll(
		func(scale int, width int) bool {
			target := state.TargetStatus{LastRTT: time.Duration(scale*width+1) * time.Millisecond}
			return buildBar(target, scale, width) == strings.Repeat("#", width)
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 50),
	))

	props.Property("non-positive scale defaults to 10", prop.ForAll(
		func(rttMs int, width int, scale int) bool {
			target := state.TargetStatus{LastRTT: time.Duration(rttMs) * time.Millisecond}
			return buildBar(target, scale, width) == buildBar(target, 10, width)
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 100),
		gen.IntRange(-10, 0),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestPropertyTargetLine(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)
	u := &UI{cfg: config.GlobalOptions{UIScale: 10}}

	props.Property("line shows the current status", prop.ForAll(
		func(idx int) bool {
			statuses := []state.Status{state.StatusOK, state.StatusWarn, state.StatusDown, state.StatusUnknown}
			status := statuses[idx]
			line := u.formatTargetLine(120, state.TargetStatus{
				Name:    "test",
				Address: "192.0.2.1",
				Status:  status,
			}).String()
			label := string(status)
			if len(label) > 6 {
				label = label[:6]
			}
			return strings.Contains(line, label)
		},
		gen.IntRange(0, 3),
	))

	props.Property("average ignores runs without replies", prop.ForAll(
		func(historySize int, lostEvery int) bool {
			history := make([]state.RTTPoint, historySize)
			var sum time.Duration
			used := 0
			for i := range history {
				if i%lostEvery == lostEvery-1 {
					history[i] = state.RTTPoint{LossPercent: 100}
					continue
				}
				rtt := time.Duration((i+1)*10) * time.Millisecond
				history[i] = state.RTTPoint{RTT: rtt}
				sum += rtt
				used++
			}
			target := state.TargetStatus{LastRTT: 7 * time.Millisecond, History: history}
			want := target.LastRTT
			if used > 0 {
				want = sum / time.Duration(used)
			}
			return calculateAvgRTT(target) == want
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 5),
	))

	props.Property("loss is lifetime lost over sent", prop.ForAll(
		func(sent int, received int) bool {
			if received > sent {
				received = sent
			}
			target := state.TargetStatus{
				Name:           "test",
				Address:        "192.0.2.1",
				ProbesSent:     sent,
				ProbesReceived: received,
			}
			want := float64(sent-received) / float64(sent) * 100.0
			line := u.formatTargetLine(120, target).String()
			return calculateLossPercent(target) == want &&
				strings.Contains(line, fmt.Sprintf("LOSS:%.1f%%", want))
		},
		gen.IntRange(1, 400),
		gen.IntRange(0, 400),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}

func groupName(index int) string {
	return "group-" + string(rune('A'+index))
}

func targetName(groupIndex, targetIndex int) string {
	return fmt.Sprintf("target-%d-%d", groupIndex, targetIndex)
}

func address(groupIndex, targetIndex int) string {
	return fmt.Sprintf("192.0.2.%d", groupIndex*10+targetIndex)
}
