package acs

// cleanup resets all per-invocation ACS state on iface so a later
// invocation starts clean (§4.7). Idempotent: calling it on an
// already-clean interface is a no-op.
func cleanup(i *Iface) {
	for _, c := range i.Mode.Channels {
		c.reset()
	}

	i.chansSurveyed = 0
	i.offChannelFreqIdx = 0
	i.acsNumCompletedSurveys = 0
	i.lowestNF = 0
}
