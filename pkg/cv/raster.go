package cv

// Raster is a single-channel (grayscale) pixel grid for a rendered page, at
// the DPI the caller rendered it. Row-major, 0 (black) .. 255 (white).
type Raster struct {
	W, H int
	Gray []uint8
}

func (r Raster) at(x, y int) uint8 {
	if x < 0 || y < 0 || x >= r.W || y >= r.H {
		return 255
	}
	return r.Gray[y*r.W+x]
}

// component is one connected region of "dark" (foreground) pixels found by
// labelComponents, standing in for an OpenCV contour.
type component struct {
	minX, minY, maxX, maxY int
	area                   int // pixel count of the component itself
}

func (c component) bboxW() int { return c.maxX - c.minX + 1 }
func (c component) bboxH() int { return c.maxY - c.minY + 1 }
func (c component) bboxArea() int { return c.bboxW() * c.bboxH() }

// aspectRatio is the raw width/height ratio of the bounding box.
func (c component) aspectRatio() float64 {
	h := c.bboxH()
	if h == 0 {
		return 0
	}
	return float64(c.bboxW()) / float64(h)
}

// solidity approximates contour solidity (area / convex-hull area) as
// component pixel count over its bounding-box area, a cheap proxy that
// favors filled, box-like shapes over sparse or L-shaped ones.
func (c component) solidity() float64 {
	bbox := c.bboxArea()
	if bbox == 0 {
		return 0
	}
	return float64(c.area) / float64(bbox)
}

// labelComponents thresholds the raster at threshold (pixels darker than
// this are foreground) and returns each 4-connected component via an
// iterative flood fill. This is the stand-in for Canny edge detection +
// findContours (see package doc).
func labelComponents(r Raster, threshold uint8) []component {
	visited := make([]bool, r.W*r.H)
	var comps []component

	for y := 0; y < r.H; y++ {
		for x := 0; x < r.W; x++ {
			idx := y*r.W + x
			if visited[idx] || r.at(x, y) >= threshold {
				continue
			}

			stack := [][2]int{{x, y}}
			visited[idx] = true
			c := component{minX: x, minY: y, maxX: x, maxY: y}

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				c.area++
				if px < c.minX {
					c.minX = px
				}
				if px > c.maxX {
					c.maxX = px
				}
				if py < c.minY {
					c.minY = py
				}
				if py > c.maxY {
					c.maxY = py
				}

				for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					nx, ny := px+d[0], py+d[1]
					if nx < 0 || ny < 0 || nx >= r.W || ny >= r.H {
						continue
					}
					nidx := ny*r.W + nx
					if visited[nidx] || r.at(nx, ny) >= threshold {
						continue
					}
					visited[nidx] = true
					stack = append(stack, [2]int{nx, ny})
				}
			}

			comps = append(comps, c)
		}
	}

	return comps
}
