package detector

// minScore drops near-zero rows before they reach suppression.
const minScore = 1e-3

// DecodeYOLO converts a raw YOLO output tensor into candidates.
//
// Two layouts are understood:
//   - [1, N, 5+nc]: one row per anchor with objectness (YOLOv5/YOLOv7)
//   - [1, 4+nc, N]: channel-first without objectness (YOLOv8 and later)
//
// Rows are told apart by shape; the anchor axis is always the longer one.
// Boxes are returned as corners in input-blob pixels.
func DecodeYOLO(data []float32, dims []int) []Candidate {
	rows, cols, ok := outputShape(dims)
	if !ok || len(data) < rows*cols {
		return nil
	}

	if rows >= cols {
		return decodeRows(data, rows, cols)
	}
	return decodeChannels(data, cols, rows)
}

func outputShape(dims []int) (rows, cols int, ok bool) {
	switch len(dims) {
	case 2:
		return dims[0], dims[1], dims[0] > 0 && dims[1] > 0
	case 3:
		if dims[0] != 1 {
			return 0, 0, false
		}
		return dims[1], dims[2], dims[1] > 0 && dims[2] > 0
	default:
		return 0, 0, false
	}
}

// decodeRows handles [N, 5+nc].
func decodeRows(data []float32, n, width int) []Candidate {
	if width < 6 {
		return nil
	}

	var out []Candidate
	for i := 0; i < n; i++ {
		row := data[i*width : (i+1)*width]
		obj := row[4]
		if obj < minScore {
			continue
		}

		class, score := argmax(row[5:])
		conf := obj * score
		if conf < minScore {
			continue
		}

		out = append(out, Candidate{
			Box:        xywhToBox(row[0], row[1], row[2], row[3]),
			Confidence: conf,
			Class:      class,
		})
	}
	return out
}

// decodeChannels handles [4+nc, N], reading each anchor down the columns.
func decodeChannels(data []float32, n, channels int) []Candidate {
	if channels < 5 {
		return nil
	}

	at := func(c, i int) float32 { return data[c*n+i] }

	var out []Candidate
	for i := 0; i < n; i++ {
		class, best := -1, float32(0)
		for c := 4; c < channels; c++ {
			if v := at(c, i); v > best {
				best = v
				class = c - 4
			}
		}
		if class < 0 || best < minScore {
			continue
		}

		out = append(out, Candidate{
			Box:        xywhToBox(at(0, i), at(1, i), at(2, i), at(3, i)),
			Confidence: best,
			Class:      class,
		})
	}
	return out
}

func argmax(scores []float32) (int, float32) {
	idx, best := 0, scores[0]
	for i, v := range scores[1:] {
		if v > best {
			best = v
			idx = i + 1
		}
	}
	return idx, best
}

func xywhToBox(cx, cy, w, h float32) Box {
	return Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}
