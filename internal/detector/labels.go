package detector

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadLabels reads class labels from a text file with one label per line.
// Blank lines are skipped.
func LoadLabels(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	return labels, nil
}

// FindLabels looks for a label file next to the weights: "<stem>.names",
// then "names.txt". It returns an empty path when none exists.
func FindLabels(weights string) string {
	dir := filepath.Dir(weights)
	stem := strings.TrimSuffix(filepath.Base(weights), filepath.Ext(weights))

	candidates := []string{
		filepath.Join(dir, stem+".names"),
		filepath.Join(dir, "names.txt"),
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// cocoNames are the 80 COCO labels the stock YOLO weights are trained on.
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier",
	"toothbrush",
}

// COCONames returns a copy of the COCO label list.
func COCONames() []string {
	names := make([]string, len(cocoNames))
	copy(names, cocoNames)
	return names
}
