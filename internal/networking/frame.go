package networking

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"robotarena/server/internal/arena"
	"robotarena/server/internal/geometry"
)

// ErrMalformedFrame is returned when a binary frame cannot be decoded.
var ErrMalformedFrame = errors.New("malformed snapshot frame")

// Field numbers of the binary snapshot frame. They are part of the wire format: never
// renumber, only append.
const (
	frameRound   protowire.Number = 1
	frameTurn    protowire.Number = 2
	frameWidth   protowire.Number = 3
	frameHeight  protowire.Number = 4
	frameRobot   protowire.Number = 5
	frameBullet  protowire.Number = 6
	robotName    protowire.Number = 1
	robotX       protowire.Number = 2
	robotY       protowire.Number = 3
	robotBody    protowire.Number = 4
	robotGun     protowire.Number = 5
	robotRadar   protowire.Number = 6
	robotSpeed   protowire.Number = 7
	robotEnergy  protowire.Number = 8
	robotHeat    protowire.Number = 9
	robotState   protowire.Number = 10
	robotColor   protowire.Number = 11
	robotGunCol  protowire.Number = 12
	robotRadCol  protowire.Number = 13
	robotScanCol protowire.Number = 14
	robotScan    protowire.Number = 15
	bulletID     protowire.Number = 1
	bulletOwner  protowire.Number = 2
	bulletX      protowire.Number = 3
	bulletY      protowire.Number = 4
	bulletHead   protowire.Number = 5
	bulletPower  protowire.Number = 6
	bulletState  protowire.Number = 7
	bulletFrame  protowire.Number = 8
	bulletColor  protowire.Number = 9
)

// EncodeFrame serialises a snapshot into the compact protobuf wire layout used by the
// binary spectator feeds and replay frame logs.
func EncodeFrame(snapshot arena.Snapshot) []byte {
	var b []byte
	b = appendVarint(b, frameRound, uint64(snapshot.Round))
	b = appendVarint(b, frameTurn, uint64(snapshot.Turn))
	b = appendDouble(b, frameWidth, snapshot.Width)
	b = appendDouble(b, frameHeight, snapshot.Height)
	for _, robot := range snapshot.Robots {
		b = protowire.AppendTag(b, frameRobot, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRobot(robot))
	}
	for _, bullet := range snapshot.Bullets {
		b = protowire.AppendTag(b, frameBullet, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeBullet(bullet))
	}
	return b
}

func encodeRobot(r arena.RobotView) []byte {
	var b []byte
	b = appendString(b, robotName, r.Name)
	b = appendDouble(b, robotX, r.X)
	b = appendDouble(b, robotY, r.Y)
	b = appendDouble(b, robotBody, r.BodyHeading)
	b = appendDouble(b, robotGun, r.GunHeading)
	b = appendDouble(b, robotRadar, r.RadarHeading)
	b = appendDouble(b, robotSpeed, r.Velocity)
	b = appendDouble(b, robotEnergy, r.Energy)
	b = appendDouble(b, robotHeat, r.GunHeat)
	b = appendString(b, robotState, r.State)
	b = appendString(b, robotColor, r.BodyColor)
	b = appendString(b, robotGunCol, r.GunColor)
	b = appendString(b, robotRadCol, r.RadarColor)
	b = appendString(b, robotScanCol, r.ScanColor)
	b = protowire.AppendTag(b, robotScan, protowire.BytesType)
	return protowire.AppendBytes(b, encodeArc(r.Scan))
}

func encodeArc(a geometry.Arc) []byte {
	values := arcValues(&a)
	var b []byte
	for i, v := range values {
		b = appendDouble(b, protowire.Number(i+1), *v)
	}
	return b
}

func encodeBullet(v arena.BulletView) []byte {
	var b []byte
	b = appendVarint(b, bulletID, v.ID)
	b = appendString(b, bulletOwner, v.Owner)
	b = appendDouble(b, bulletX, v.X)
	b = appendDouble(b, bulletY, v.Y)
	b = appendDouble(b, bulletHead, v.Heading)
	b = appendDouble(b, bulletPower, v.Power)
	b = appendString(b, bulletState, v.State)
	b = appendVarint(b, bulletFrame, uint64(v.Frame))
	return appendString(b, bulletColor, v.Color)
}

// DecodeFrame parses a frame produced by EncodeFrame. Unknown fields are skipped.
func DecodeFrame(b []byte) (arena.Snapshot, error) {
	var snapshot arena.Snapshot
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		switch {
		case num == frameRound && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(value)
			snapshot.Round = int(v)
			return n, nil
		case num == frameTurn && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(value)
			snapshot.Turn = int(v)
			return n, nil
		case num == frameWidth && typ == protowire.Fixed64Type:
			return consumeDouble(value, &snapshot.Width)
		case num == frameHeight && typ == protowire.Fixed64Type:
			return consumeDouble(value, &snapshot.Height)
		case num == frameRobot && typ == protowire.BytesType:
			payload, n := protowire.ConsumeBytes(value)
			if n < 0 {
				return n, nil
			}
			robot, err := decodeRobot(payload)
			if err != nil {
				return 0, err
			}
			snapshot.Robots = append(snapshot.Robots, robot)
			return n, nil
		case num == frameBullet && typ == protowire.BytesType:
			payload, n := protowire.ConsumeBytes(value)
			if n < 0 {
				return n, nil
			}
			bullet, err := decodeBullet(payload)
			if err != nil {
				return 0, err
			}
			snapshot.Bullets = append(snapshot.Bullets, bullet)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, value), nil
	})
	return snapshot, err
}

func decodeRobot(b []byte) (arena.RobotView, error) {
	var r arena.RobotView
	doubles := map[protowire.Number]*float64{
		robotX: &r.X, robotY: &r.Y, robotBody: &r.BodyHeading, robotGun: &r.GunHeading,
		robotRadar: &r.RadarHeading, robotSpeed: &r.Velocity, robotEnergy: &r.Energy, robotHeat: &r.GunHeat,
	}
	strs := map[protowire.Number]*string{
		robotName: &r.Name, robotState: &r.State, robotColor: &r.BodyColor,
		robotGunCol: &r.GunColor, robotRadCol: &r.RadarColor, robotScanCol: &r.ScanColor,
	}
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		if dst, ok := doubles[num]; ok && typ == protowire.Fixed64Type {
			return consumeDouble(value, dst)
		}
		if dst, ok := strs[num]; ok && typ == protowire.BytesType {
			return consumeString(value, dst)
		}
		if num == robotScan && typ == protowire.BytesType {
			payload, n := protowire.ConsumeBytes(value)
			if n < 0 {
				return n, nil
			}
			arc, err := decodeArc(payload)
			r.Scan = arc
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, value), nil
	})
	return r, err
}

func decodeArc(b []byte) (geometry.Arc, error) {
	var a geometry.Arc
	values := arcValues(&a)
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		idx := int(num) - 1
		if idx >= 0 && idx < len(values) && typ == protowire.Fixed64Type {
			return consumeDouble(value, values[idx])
		}
		return protowire.ConsumeFieldValue(num, typ, value), nil
	})
	return a, err
}

// arcValues lists the arc components in wire order.
func arcValues(a *geometry.Arc) []*float64 {
	return []*float64{
		&a.Origin.X, &a.Origin.Y, &a.Start.X, &a.Start.Y, &a.End.X, &a.End.Y,
		&a.Radius, &a.StartAngle, &a.Extent,
	}
}

func decodeBullet(b []byte) (arena.BulletView, error) {
	var v arena.BulletView
	doubles := map[protowire.Number]*float64{
		bulletX: &v.X, bulletY: &v.Y, bulletHead: &v.Heading, bulletPower: &v.Power,
	}
	strs := map[protowire.Number]*string{
		bulletOwner: &v.Owner, bulletState: &v.State, bulletColor: &v.Color,
	}
	err := walk(b, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		if dst, ok := doubles[num]; ok && typ == protowire.Fixed64Type {
			return consumeDouble(value, dst)
		}
		if dst, ok := strs[num]; ok && typ == protowire.BytesType {
			return consumeString(value, dst)
		}
		switch {
		case num == bulletID && typ == protowire.VarintType:
			id, n := protowire.ConsumeVarint(value)
			v.ID = id
			return n, nil
		case num == bulletFrame && typ == protowire.VarintType:
			frame, n := protowire.ConsumeVarint(value)
			v.Frame = int(frame)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, value), nil
	})
	return v, err
}

type fieldFunc func(num protowire.Number, typ protowire.Type, value []byte) (int, error)

// walk iterates the fields of one message; fn returns the bytes consumed after the tag.
func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func consumeDouble(b []byte, dst *float64) (int, error) {
	v, n := protowire.ConsumeFixed64(b)
	if n >= 0 {
		*dst = math.Float64frombits(v)
	}
	return n, nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n, nil
}
