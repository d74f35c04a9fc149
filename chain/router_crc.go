package chain

import (
	"fmt"

	"github.com/polarsim/wavekit/pipeline"
)

// CRCRouter steers decoded frames by their CRC verdict: branch 0 for
// frames whose check bits verify, branch 1 for frames that need another
// decoding round. Per-wave the default smallest-index reduction applies;
// loops that must retry until every frame verifies install a max
// reduction with SetSelectInter.
type CRCRouter struct {
	pipeline.Router
	crc *CRC
}

// NewCRCRouter builds a two-branch router reading K+Size bit frames and
// judging them with the given CRC stage.
func NewCRCRouter(crc *CRC, nFrames int) (*CRCRouter, error) {
	if crc == nil {
		return nil, fmt.Errorf("%w: the CRC router needs a CRC stage", pipeline.ErrConfig)
	}
	r := &CRCRouter{crc: crc}
	kc := crc.K() + crc.Size()
	err := r.InitRouter("Router_CRC", pipeline.Int8, kc, kc, 2, nFrames, func(frame int) int {
		v := pipeline.View[int8](r.In())
		if r.crc.CheckFrame(v[frame*kc : (frame+1)*kc]) {
			return 0
		}
		return 1
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CRC returns the checking stage backing the routing decision.
func (r *CRCRouter) CRC() *CRC { return r.crc }
