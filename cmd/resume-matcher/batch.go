package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"resume-matcher/internal/extractor"
	"resume-matcher/internal/processor"
	"resume-matcher/internal/types"
)

// runBatch 对命令行给出的简历执行一次批处理，结果以 JSON 写到标准输出。
// 收到 SIGINT 时取消批处理，已开始的文档仍会输出结果
func (a *application) runBatch(ctx context.Context, opts options) error {
	input, err := a.batchInput(ctx, opts)
	if err != nil {
		return err
	}

	var runOpts []processor.RunOption
	if opts.progress {
		runOpts = append(runOpts, processor.WithProgressListener(func(e types.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "[%s] %3d%% (%d/%d)\n", e.Phase, e.Percent, e.Completed, e.Total)
		}))
	}

	run, err := a.orch.Run(ctx, input, runOpts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(run.Snapshot())
}

func (a *application) batchInput(ctx context.Context, opts options) (processor.BatchInput, error) {
	var input processor.BatchInput

	switch {
	case opts.template != "" && opts.jobFile != "":
		return input, errors.New("--template 与 --job-file 只能指定一个")
	case opts.template != "":
		t, ok := extractor.TemplateBySlug(opts.template)
		if !ok {
			return input, fmt.Errorf("未知的岗位模板: %s", opts.template)
		}
		req := a.extractor.RequirementFromTemplate(t)
		input.Requirement = &req
	case opts.jobFile != "":
		data, err := os.ReadFile(opts.jobFile)
		if err != nil {
			return input, fmt.Errorf("读取岗位描述失败: %w", err)
		}
		input.JobDescription = string(data)
	}

	if opts.prefix != "" {
		if a.store.MinIO == nil {
			return input, errors.New("使用 --prefix 需要配置 minio")
		}
		docs, err := a.store.MinIO.FetchDocuments(ctx, opts.prefix)
		if err != nil {
			return input, err
		}
		input.Documents = docs
	}

	docs, err := loadDocuments(opts.paths)
	if err != nil {
		return input, err
	}
	input.Documents = append(input.Documents, docs...)
	return input, nil
}

// loadDocuments 读取本地文件，目录会展开为其中的文件（不递归，按文件名排序）
func loadDocuments(paths []string) ([]types.Document, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("读取目录 %s 失败: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				names = append(names, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}

	docs := make([]types.Document, 0, len(files))
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 失败: %w", f, err)
		}
		docs = append(docs, types.Document{
			Name:    filepath.Base(f),
			Format:  filepath.Ext(f),
			Content: content,
		})
	}
	return docs, nil
}
