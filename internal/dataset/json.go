package dataset

import (
	"encoding/json"
	"fmt"
	"os"
)

// readJSON loads a JSON file holding an array of flat objects. Non-string
// values are stringified so records stay uniform across formats.
func readJSON(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	defer file.Close()

	var rawRecords []map[string]interface{}
	if err := json.NewDecoder(file).Decode(&rawRecords); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(rawRecords) == 0 {
		return nil, fmt.Errorf("JSON file contains an empty array")
	}

	records := make([]Record, 0, len(rawRecords))
	for i, rawRecord := range rawRecords {
		if len(rawRecord) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(rawRecord))
		for key, value := range rawRecord {
			record[key] = fmt.Sprintf("%v", value)
		}
		records = append(records, record)
	}

	return records, nil
}
