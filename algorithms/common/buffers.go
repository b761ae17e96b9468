package common

// FloatRing is a fixed-capacity FIFO of scalars. Pushing onto a full ring
// overwrites the oldest value. Storage is allocated once.
type FloatRing struct {
	buffer   []float64
	size     int
	writePos int
	count    int
}

// NewFloatRing creates a ring holding at most size values
func NewFloatRing(size int) *FloatRing {
	if size < 1 {
		size = 1
	}
	return &FloatRing{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Push appends a value, evicting the oldest when full
func (r *FloatRing) Push(v float64) {
	r.buffer[r.writePos] = v
	r.writePos = (r.writePos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// At returns the i-th value, 0 being the oldest
func (r *FloatRing) At(i int) float64 {
	start := (r.writePos - r.count + r.size) % r.size
	return r.buffer[(start+i)%r.size]
}

// Newest returns the most recently pushed value (0 when empty)
func (r *FloatRing) Newest() float64 {
	if r.count == 0 {
		return 0
	}
	return r.At(r.count - 1)
}

// MeanOfOlder averages every value except the newest one
func (r *FloatRing) MeanOfOlder() float64 {
	if r.count < 2 {
		return 0
	}

	sum := 0.0
	for i := 0; i < r.count-1; i++ {
		sum += r.At(i)
	}
	return sum / float64(r.count-1)
}

// Values copies the contents into a new slice, oldest first
func (r *FloatRing) Values() []float64 {
	out := make([]float64, r.count)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Len returns the number of stored values
func (r *FloatRing) Len() int {
	return r.count
}

// Cap returns the ring capacity
func (r *FloatRing) Cap() int {
	return r.size
}

// Reset empties the ring without releasing storage
func (r *FloatRing) Reset() {
	r.writePos = 0
	r.count = 0
}

// FrameRing is a fixed-capacity FIFO of equal-length vectors backed by a
// single arena, so pushing a frame never allocates.
type FrameRing struct {
	arena    []float64
	width    int
	size     int
	writePos int
	count    int
}

// NewFrameRing creates a ring of size rows, each width values wide
func NewFrameRing(size, width int) *FrameRing {
	if size < 1 {
		size = 1
	}
	return &FrameRing{
		arena: make([]float64, size*width),
		width: width,
		size:  size,
	}
}

// Push copies frame into the next row. Short frames are zero-filled and long
// frames truncated to the ring width.
func (r *FrameRing) Push(frame []float64) {
	row := r.row(r.writePos)
	n := copy(row, frame)
	for i := n; i < len(row); i++ {
		row[i] = 0
	}

	r.writePos = (r.writePos + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// MeanInto writes the element-wise mean of all stored rows into dst and
// returns it. dst is allocated when it is too short.
func (r *FrameRing) MeanInto(dst []float64) []float64 {
	if len(dst) < r.width {
		dst = make([]float64, r.width)
	}
	dst = dst[:r.width]
	for i := range dst {
		dst[i] = 0
	}
	if r.count == 0 {
		return dst
	}

	start := (r.writePos - r.count + r.size) % r.size
	for k := 0; k < r.count; k++ {
		row := r.row((start + k) % r.size)
		for i, v := range row {
			dst[i] += v
		}
	}

	inv := 1.0 / float64(r.count)
	for i := range dst {
		dst[i] *= inv
	}
	return dst
}

func (r *FrameRing) row(i int) []float64 {
	return r.arena[i*r.width : (i+1)*r.width]
}

// Len returns the number of stored rows
func (r *FrameRing) Len() int {
	return r.count
}

// Width returns the row width
func (r *FrameRing) Width() int {
	return r.width
}

// Reset empties the ring without releasing storage
func (r *FrameRing) Reset() {
	r.writePos = 0
	r.count = 0
}
