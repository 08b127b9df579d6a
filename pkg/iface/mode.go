// Package iface builds pkg/acs.Mode values (the AP interface's candidate
// channel list) from a regulatory domain name and band.
package iface

import (
	"fmt"

	"github.com/acs-wifi/acsd/pkg/acs"
)

// RegDomainChannels is the set of 2.4 GHz and 5 GHz channels (and which of
// the 5 GHz ones require DFS clearance) permitted under a regulatory
// domain, mirroring pkg/wifi.RegDomainChannels from the donor codebase.
type RegDomainChannels struct {
	Channels2GHz []int
	Channels5GHz []int
	DFSChannels  []int
}

var regDomains = map[string]RegDomainChannels{
	"ETSI": {
		Channels2GHz: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
		Channels5GHz: []int{36, 40, 44, 48, 52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140},
		DFSChannels:  []int{52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140},
	},
	"FCC": {
		Channels2GHz: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
		Channels5GHz: []int{36, 40, 44, 48, 52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144, 149, 153, 157, 161, 165},
		DFSChannels:  []int{52, 56, 60, 64, 100, 104, 108, 112, 116, 120, 124, 128, 132, 136, 140, 144},
	},
	"default": {
		Channels2GHz: []int{1, 6, 11},
		Channels5GHz: []int{36, 40, 44, 48},
		DFSChannels:  nil,
	},
}

// channelToFreq converts a channel number to its center frequency in MHz
// for the 2.4/5 GHz bands this engine targets.
func channelToFreq(ch int) int {
	switch {
	case ch == 14:
		return 2484
	case ch >= 1 && ch <= 13:
		return 2407 + ch*5
	case ch >= 36 && ch <= 177:
		return 5000 + ch*5
	default:
		return 0
	}
}

// BuildMode constructs an acs.Mode covering every channel permitted in
// regDomain for the requested band ("2.4ghz", "5ghz", or "both"). DFS
// channels are included only when useDFS is true; when excluded they are
// omitted entirely rather than marked disabled, since a non-DFS-capable AP
// was never going to request a dwell on them in the first place.
func BuildMode(regDomain, band string, useDFS bool) (*acs.Mode, error) {
	rd, ok := regDomains[regDomain]
	if !ok {
		rd = regDomains["default"]
	}

	var nums []int
	switch band {
	case "2.4ghz":
		nums = rd.Channels2GHz
	case "5ghz":
		nums = appendFiltered(rd.Channels5GHz, rd.DFSChannels, useDFS)
	case "both", "":
		nums = append(append([]int{}, rd.Channels2GHz...), appendFiltered(rd.Channels5GHz, rd.DFSChannels, useDFS)...)
	default:
		return nil, fmt.Errorf("iface: unknown band %q", band)
	}

	mode := &acs.Mode{}
	for _, n := range nums {
		freq := channelToFreq(n)
		if freq == 0 {
			continue
		}
		mode.Channels = append(mode.Channels, &acs.Channel{Chan: n, Freq: freq})
	}
	if len(mode.Channels) == 0 {
		return nil, fmt.Errorf("iface: regulatory domain %q band %q produced no channels", regDomain, band)
	}
	return mode, nil
}

func appendFiltered(channels, dfs []int, useDFS bool) []int {
	if useDFS {
		return channels
	}
	dfsSet := make(map[int]bool, len(dfs))
	for _, d := range dfs {
		dfsSet[d] = true
	}
	out := make([]int, 0, len(channels))
	for _, c := range channels {
		if !dfsSet[c] {
			out = append(out, c)
		}
	}
	return out
}

// DisableByRadar marks the channels in freqsMHz as disabled and
// radar-flagged in mode. Neither the engine nor acsd's daemon calls it.
func DisableByRadar(mode *acs.Mode, freqsMHz []int) {
	set := make(map[int]bool, len(freqsMHz))
	for _, f := range freqsMHz {
		set[f] = true
	}
	for _, c := range mode.Channels {
		if set[c.Freq] {
			c.Flags |= acs.ChanDisabled | acs.ChanRadar
		}
	}
}
