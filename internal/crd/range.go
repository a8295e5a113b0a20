package crd

import "github.com/signalsfoundry/slr-reduction/model"

// Token positions shared by full-rate (10) and normal-point (11) records.
const (
	rangeTimeOfDay    = 1
	rangeTimeOfFlight = 2
	rangeConfigID     = 3
	rangeEpochEvent   = 4
)

// decodeRange reads a 10 or 11 record. An epoch-event code the reduction
// does not understand yields a warning alongside the sample.
func decodeRange(rec record) (model.RangeSample, *Warning, error) {
	tod, err := rec.float("time_of_day", rangeTimeOfDay)
	if err != nil {
		return model.RangeSample{}, nil, err
	}
	tof, err := rec.float("time_of_flight", rangeTimeOfFlight)
	if err != nil {
		return model.RangeSample{}, nil, err
	}
	cfg, err := rec.text("system_config_id", rangeConfigID)
	if err != nil {
		return model.RangeSample{}, nil, err
	}
	ev, err := rec.int("epoch_event", rangeEpochEvent)
	if err != nil {
		return model.RangeSample{}, nil, err
	}

	s := model.RangeSample{
		LineNo:         rec.lineNo,
		TimeOfDay:      tod,
		TimeOfFlight:   tof,
		EpochEvent:     model.EpochEvent(ev),
		SystemConfigID: cfg,
		NormalPoint:    rec.tag() == "11",
	}
	if !s.EpochEvent.Known() {
		return s, &Warning{LineNo: rec.lineNo, Line: rec.line, Err: ErrUnrecognizedEpochEvent}, nil
	}
	return s, nil, nil
}

// decodeSessionDate reads the start date of an H4 record.
func decodeSessionDate(rec record) (model.SessionHeader, error) {
	ymd, err := rec.ints(2, "year", "month", "day")
	if err != nil {
		return model.SessionHeader{}, err
	}
	return model.SessionHeader{Year: ymd[0], Month: ymd[1], Day: ymd[2]}, nil
}
