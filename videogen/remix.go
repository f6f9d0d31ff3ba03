package videogen

import (
	"context"
	"fmt"
)

// Remix 基于已完成任务创建改写任务。
// 功能：父任务必须存在且为 completed；子任务继承父任务的模型、尺寸与时长，
// 并记录 parent_job_id 保留派生关系。
// 返回：子任务记录；父任务未完成返回 ErrParentNotReady，父任务缺失返回 ErrNotFound。
func (d *Dispatcher) Remix(ctx context.Context, parentJobID, prompt string) (*JobRecord, error) {
	parent, err := d.store.Get(ctx, parentJobID)
	if err != nil {
		return nil, err
	}
	if parent.State != StateCompleted {
		return nil, fmt.Errorf("%w: parent %s is %s", ErrParentNotReady, parentJobID, parent.State)
	}
	req := GenerationRequest{Model: parent.Model, Prompt: prompt, Size: parent.Size, Seconds: parent.Seconds}
	return d.dispatch(ctx, req, parent.JobID, parent.ProviderJobID)
}
