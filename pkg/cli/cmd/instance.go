package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/wengine/pkg/cli/output"
	"github.com/LENAX/wengine/pkg/core/instance"
	"github.com/LENAX/wengine/pkg/core/page"
	"github.com/LENAX/wengine/pkg/index"
	"github.com/spf13/cobra"
)

func newInstanceCmd(opts *rootOptions) *cobra.Command {
	instanceCmd := &cobra.Command{
		Use:   "instance",
		Short: "Instance管理命令",
		Long:  `浏览和查看已持久化的任务实例。`,
	}
	instanceCmd.AddCommand(newInstancePageCmd(opts))
	instanceCmd.AddCommand(newInstanceGetCmd(opts))
	return instanceCmd
}

// pageFlags instance page 的参数
type pageFlags struct {
	pageNum     int
	pageSize    int
	model       string
	state       string
	category    string
	met         []string
	order       string
	reverse     bool
	showMessage bool
}

// filter 构造过滤条件，--met 格式为 key=v1,v2
func (f *pageFlags) filter() (*page.PageFilter, error) {
	pf := &page.PageFilter{ModelID: f.model, State: f.state}
	if f.category != "" {
		c, err := instance.ParseCategory(f.category)
		if err != nil {
			return nil, err
		}
		pf.Category = c
	}
	for _, kv := range f.met {
		key, vals, ok := strings.Cut(kv, "=")
		if !ok || key == "" || vals == "" {
			return nil, fmt.Errorf("--met 格式应为 key=v1,v2: %q", kv)
		}
		if pf.Metadata == nil {
			pf.Metadata = make(map[string][]string)
		}
		pf.Metadata[key] = append(pf.Metadata[key], strings.Split(vals, ",")...)
	}
	return pf, nil
}

func newInstancePageCmd(opts *rootOptions) *cobra.Command {
	flags := &pageFlags{}
	c := &cobra.Command{
		Use:   "page",
		Short: "分页浏览实例",
		Example: `  wengine instance page --category DONE --order CompletionDate --reverse
  wengine instance page --model etl --met Product=p1,p2 --page-size 20 --page-num 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := page.NewPageInfo(flags.pageSize, flags.pageNum)
			if err != nil {
				return err
			}
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			cmp, err := page.ParseOrdering(flags.order, time.Now)
			if err != nil {
				return err
			}
			if cmp != nil && flags.reverse {
				cmp = page.Reverse(cmp)
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var result page.QueryPage
			if cmp == nil {
				// 不排序时直接在索引层分页，只读取当前页
				result, err = a.repo.QueryPage(cmd.Context(), info, filter.Expression())
			} else {
				result, err = page.NewPaginator(a.repo).GetPage(cmd.Context(), info, filter, cmp)
			}
			if err != nil {
				output.Error(opts.errOut, "查询失败: %v", err)
				return err
			}

			if opts.outputJSON {
				return output.PrintJSON(opts.out, result)
			}
			if len(result.Items) == 0 {
				output.Info(opts.out, "暂无Instance")
				return nil
			}
			renderStubs(opts, result.Items, flags.showMessage)
			fmt.Fprintf(opts.out, "\n第 %d/%d 页，共 %d 条记录\n", result.PageNum, result.TotalPages, result.NumOfHits)
			return nil
		},
	}
	c.Flags().IntVar(&flags.pageNum, "page-num", 1, "页码（从1开始）")
	c.Flags().IntVar(&flags.pageSize, "page-size", 20, "每页数量")
	c.Flags().StringVar(&flags.model, "model", "", "按ModelId过滤")
	c.Flags().StringVar(&flags.state, "state", "", "按状态名过滤 (Pending/Executing/ExecutionComplete/Failure)")
	c.Flags().StringVar(&flags.category, "category", "", "按状态类别过滤 (WAITING/RUNNING/DONE)")
	c.Flags().StringArrayVar(&flags.met, "met", nil, "按元数据过滤，格式 key=v1,v2，可重复")
	c.Flags().StringVar(&flags.order, "order", "", "排序 ("+strings.Join(page.Orderings(), "/")+")")
	c.Flags().BoolVar(&flags.reverse, "reverse", false, "倒序")
	c.Flags().BoolVar(&flags.showMessage, "show-message", false, "显示状态消息")
	return c
}

func renderStubs(opts *rootOptions, stubs []instance.ProcessorStub, showMessage bool) {
	headers := []string{"INSTANCE_ID", "MODEL", "TASK", "STATE", "CREATED", "COMPLETED", "BLOCKED"}
	if showMessage {
		headers = append(headers, "MESSAGE")
	}
	table := output.NewTable(headers)
	for _, s := range stubs {
		completed := "-"
		if s.Info.CompletionDate != nil {
			completed = s.Info.CompletionDate.Format("2006-01-02 15:04:05")
		}
		row := []string{
			s.InstanceID,
			s.ModelID,
			s.TaskName,
			output.StateLabel(string(s.State.Category), s.State.Name),
			s.Info.CreationDate.Format("2006-01-02 15:04:05"),
			completed,
			fmt.Sprintf("%d", s.TimesBlocked),
		}
		if showMessage {
			row = append(row, truncate(s.State.Message, 60))
		}
		table.AddRow(row)
	}
	table.Render(opts.out)
}

func newInstanceGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <instance-id>",
		Short: "查看实例详情",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			inst, err := a.repo.Get(cmd.Context(), args[0])
			if err != nil {
				output.Error(opts.errOut, "查询失败: %v", err)
				return err
			}
			stub := inst.Stub()
			if opts.outputJSON {
				return output.PrintJSON(opts.out, map[string]interface{}{
					"stub":   stub,
					"config": inst.Config(),
				})
			}

			w := opts.out
			fmt.Fprintf(w, "Instance: %s\n", stub.InstanceID)
			fmt.Fprintf(w, "Model:    %s\n", stub.ModelID)
			fmt.Fprintf(w, "Task:     %s (%s)\n", stub.TaskName, inst.BodyName())
			fmt.Fprintf(w, "State:    %s\n", output.StateLabel(string(stub.State.Category), stub.State.Name))
			if stub.State.Message != "" {
				fmt.Fprintf(w, "Message:  %s\n", stub.State.Message)
			}
			fmt.Fprintf(w, "Created:  %s\n", index.FormatDate(stub.Info.CreationDate))
			if stub.Info.ExecutionDate != nil {
				fmt.Fprintf(w, "Started:  %s\n", index.FormatDate(*stub.Info.ExecutionDate))
			}
			if stub.Info.CompletionDate != nil {
				fmt.Fprintf(w, "Finished: %s\n", index.FormatDate(*stub.Info.CompletionDate))
			}
			fmt.Fprintf(w, "Blocked:  %d\n", stub.TimesBlocked)
			cfg := inst.Config()
			if len(cfg) > 0 {
				fmt.Fprintln(w, "\nConfig:")
				table := output.NewTable([]string{"KEY", "VALUES"})
				for _, k := range cfg.Keys() {
					table.AddRow([]string{k, strings.Join(cfg[k], ", ")})
				}
				table.Render(w)
			}
			return nil
		},
	}
}

// truncate 截断过长的文本
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
