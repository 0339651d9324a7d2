// Package avc converts H.264 access units between the encoder's Annex-B
// output and the length-prefixed form containers store.
package avc

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pkg/errors"
)

// ToAVCC converts an Annex-B access unit into 4 byte length-prefixed NAL
// units. Parameter sets and delimiters are dropped since containers carry
// the former out of band. A unit left empty yields nil.
func ToAVCC(data []byte) ([]byte, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "avc: parse access unit")
	}
	nalus := make([][]byte, 0, len(au))
	for _, nalu := range au {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS, h264.NALUTypePPS, h264.NALUTypeAccessUnitDelimiter:
			continue
		}
		nalus = append(nalus, nalu)
	}
	if len(nalus) == 0 {
		return nil, nil
	}
	out, err := h264.AVCC(nalus).Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "avc: marshal access unit")
	}
	return out, nil
}

// DecoderConfigurationRecord builds the avcC record (ISO/IEC 14496-15)
// holding one SPS and one PPS, as FLV sequence headers carry it.
func DecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 {
		return nil, errors.New("avc: SPS too short")
	}
	if len(pps) == 0 {
		return nil, errors.New("avc: empty PPS")
	}
	rec := make([]byte, 0, 11+len(sps)+len(pps))
	rec = append(rec,
		0x01,   // configurationVersion
		sps[1], // AVCProfileIndication
		sps[2], // profile_compatibility
		sps[3], // AVCLevelIndication
		0xFF,   // 4 byte NAL unit lengths
		0xE1,   // one SPS
		byte(len(sps)>>8), byte(len(sps)),
	)
	rec = append(rec, sps...)
	rec = append(rec, 0x01, byte(len(pps)>>8), byte(len(pps)))
	return append(rec, pps...), nil
}
