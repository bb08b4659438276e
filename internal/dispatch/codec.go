package dispatch

import "encoding/json"

func marshalJob(j *Job) ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob decodes a job from its wire form. Used by the worker.
func UnmarshalJob(raw []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
