package escpos

// Chunk is an opaque piece of protocol bytes tagged with its origin.
type Chunk struct {
	Origin string
	Data   []byte
}

// Job is an encoded print job. It is not modified after encoding.
type Job struct {
	chunks []Chunk
}

// RawJob wraps bytes that were already encoded elsewhere.
func RawJob(origin string, data []byte) Job {
	return Job{chunks: []Chunk{{Origin: origin, Data: append([]byte(nil), data...)}}}
}

// Chunks returns the job's chunks in send order.
func (j Job) Chunks() []Chunk {
	return append([]Chunk(nil), j.chunks...)
}

// Bytes concatenates every chunk.
func (j Job) Bytes() []byte {
	out := make([]byte, 0, j.Size())
	for _, c := range j.chunks {
		out = append(out, c.Data...)
	}
	return out
}

// Size returns the total byte count.
func (j Job) Size() int {
	n := 0
	for _, c := range j.chunks {
		n += len(c.Data)
	}
	return n
}
