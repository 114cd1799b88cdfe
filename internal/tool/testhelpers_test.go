package tool_test

import "context"

type nopMemory struct{}

func (nopMemory) Recall(context.Context, string, int) ([]string, error) { return nil, nil }
func (nopMemory) Remember(context.Context, string, string) error        { return nil }
