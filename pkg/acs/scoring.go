package acs

import "math"

// InterferenceFactor computes the interference factor for a single survey
// measurement relative to a reference noise floor (§4.1):
//
//	factor = log2( (busy - tx) / (time - tx) * 2^(nf - nfRef) )
//
// The result increases with higher busy fraction and with higher local
// noise floor relative to the quietest channel observed. s.Valid() must
// hold; callers are expected to have validated the driver-reported survey
// before scoring it.
func InterferenceFactor(s Survey, nfRef int8) float64 {
	busyFraction := float64(s.ChannelTimeBusy-s.ChannelTimeTx) / float64(s.ChannelTime-s.ChannelTimeTx)
	noiseTerm := math.Pow(2, float64(s.NF-nfRef))
	return math.Log2(busyFraction * noiseTerm)
}

// scoreChannel computes and stores the mean interference factor across all
// surveys collected for chan, as a running sum divided by the survey count
// (§4.1 aggregation). Disabled or unsurveyed channels are left untouched.
func scoreChannel(chan_ *Channel, nfRef int8) {
	if chan_.Disabled() || len(chan_.surveyList) == 0 {
		return
	}

	var sum float64
	for _, s := range chan_.surveyList {
		sum += InterferenceFactor(s, nfRef)
	}
	chan_.surveyInterferenceFactor = sum / float64(len(chan_.surveyList))
}
