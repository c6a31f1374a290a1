package systems

import "math"

// exitOvershoot is how far past the crossed edge an exit point is placed,
// so the next step starts unambiguously inside the new cell.
const exitOvershoot = 0.1

// edgeMargin and edgeNudge keep agents off cell edges they are heading toward.
const (
	edgeMargin = 0.05
	edgeNudge  = 0.2
)

// TileExit intersects the ray pos+t*dir with the unit cell (cx, cy) and
// returns the exit point and the neighbouring cell it enters. The exit
// coordinate on the crossed axis is placed exitOvershoot past the edge.
// A zero direction returns pos and the same cell.
func TileExit(px, py, dx, dy float32, cx, cy int) (ex, ey float32, nx, ny int) {
	nx, ny = cx, cy
	if dx == 0 && dy == 0 {
		return px, py, nx, ny
	}

	x0, y0 := float32(cx), float32(cy)
	px = clampf(px, x0, x0+1)
	py = clampf(py, y0, y0+1)

	tx := float32(math.MaxFloat32)
	switch {
	case dx < 0:
		tx = (x0 - px) / dx
	case dx > 0:
		tx = (x0 + 1 - px) / dx
	}
	ty := float32(math.MaxFloat32)
	switch {
	case dy < 0:
		ty = (y0 - py) / dy
	case dy > 0:
		ty = (y0 + 1 - py) / dy
	}

	t := min(tx, ty)
	ex = px + dx*t
	ey = py + dy*t

	if tx < ty {
		if dx < 0 {
			nx--
			ex = x0 - exitOvershoot
		} else {
			nx++
			ex = x0 + 1 + exitOvershoot
		}
		ey = clampf(ey, y0, y0+1)
	} else {
		if dy < 0 {
			ny--
			ey = y0 - exitOvershoot
		} else {
			ny++
			ey = y0 + 1 + exitOvershoot
		}
		ex = clampf(ex, x0, x0+1)
	}
	return ex, ey, nx, ny
}

// nudgeFromEdge moves a position that hugs the edge it is heading toward
// back into the cell, avoiding zero-length exits.
func nudgeFromEdge(px, py, dx, dy float32) (float32, float32) {
	fx := px - float32(math.Floor(float64(px)))
	fy := py - float32(math.Floor(float64(py)))
	if dx < 0 && fx < edgeMargin {
		px += edgeNudge
	} else if dx >= 0 && fx > 1-edgeMargin {
		px -= edgeNudge
	}
	if dy < 0 && fy < edgeMargin {
		py += edgeNudge
	} else if dy >= 0 && fy > 1-edgeMargin {
		py -= edgeNudge
	}
	return px, py
}

// fallVector weighs the four orthogonal neighbour directions by their drop
// from h0. The z component is minus the summed squared drops, so a valid
// result always points down; ok is false for a flat neighbourhood.
func fallVector(h0, hn, hs, hw, he float32) (x, y, z float32, ok bool) {
	dn, ds, dw, de := h0-hn, h0-hs, h0-hw, h0-he

	y = -dn + ds
	x = -dw + de
	z = -(dn*dn + ds*ds + dw*dw + de*de)

	return normalize3(x, y, z)
}

func normalize3(x, y, z float32) (float32, float32, float32, bool) {
	l := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	if l == 0 || l != l || l > math.MaxFloat32 {
		return 0, 0, 0, false
	}
	return x / l, y / l, z / l, true
}

func dist2(ax, ay, bx, by float32) float32 {
	dx, dy := bx-ax, by-ay
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

// torusManhattan is the shortest Manhattan distance on a w×h torus.
func torusManhattan(ax, ay, bx, by, w, h int) int {
	dx := absInt(ax - bx)
	dy := absInt(ay - by)
	return min(dx, w-dx) + min(dy, h-dy)
}
