package cmd

import (
	"fmt"
	"strings"

	"github.com/LENAX/wengine/pkg/cli/output"
	"github.com/LENAX/wengine/pkg/core/query"
	"github.com/LENAX/wengine/pkg/index"
	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "属性索引命令",
		Long:  `直接操作属性索引：按表达式查询、统计、读取或删除快照。`,
	}
	indexCmd.AddCommand(newIndexQueryCmd(opts))
	indexCmd.AddCommand(newIndexSizeCmd(opts))
	indexCmd.AddCommand(newIndexBucketsCmd(opts))
	indexCmd.AddCommand(newIndexDeleteCmd(opts))
	return indexCmd
}

// parseExpr 解析命令行参数中的查询表达式，多个参数以空格拼接
func parseExpr(args []string) (query.Expression, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return query.MatchAll{}, nil
	}
	return query.Parse(text)
}

func newIndexQueryCmd(opts *rootOptions) *cobra.Command {
	var (
		start   int
		end     int
		showSQL bool
	)
	c := &cobra.Command{
		Use:   "query [expression]",
		Short: "按表达式查询实例ID",
		Example: `  wengine index query "State == Executing AND NOT TimesBlocked > 2"
  wengine index query "ModelId == etl, report" --start 0 --end 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := parseExpr(args)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if showSQL {
				sql, err := a.index.Compiler().Compile(expr)
				if err != nil {
					return err
				}
				fmt.Fprintln(opts.out, sql)
				return nil
			}

			var receipts []index.Receipt
			if end >= 0 {
				receipts, err = a.index.QueryRange(cmd.Context(), expr, start, end)
			} else {
				receipts, err = a.index.Query(cmd.Context(), expr)
			}
			if err != nil {
				output.Error(opts.errOut, "查询失败: %v", err)
				return err
			}

			if opts.outputJSON {
				return output.PrintJSON(opts.out, receipts)
			}
			if len(receipts) == 0 {
				output.Info(opts.out, "没有命中的实例")
				return nil
			}
			table := output.NewTable([]string{"INSTANCE_ID", "CREATION_DATE"})
			for _, r := range receipts {
				table.AddRow([]string{r.TransactionID.String(), index.FormatDate(r.Timestamp)})
			}
			table.Render(opts.out)
			return nil
		},
	}
	c.Flags().IntVar(&start, "start", 0, "结果起始下标（含）")
	c.Flags().IntVar(&end, "end", -1, "结果结束下标（不含），-1表示全部")
	c.Flags().BoolVar(&showSQL, "sql", false, "只输出编译后的SQL")
	return c
}

func newIndexSizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "size [expression]",
		Short: "统计命中表达式的实例数量",
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := parseExpr(args)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.index.SizeOf(cmd.Context(), expr)
			if err != nil {
				output.Error(opts.errOut, "统计失败: %v", err)
				return err
			}
			if opts.outputJSON {
				return output.PrintJSON(opts.out, map[string]int{"size": n})
			}
			fmt.Fprintln(opts.out, n)
			return nil
		},
	}
}

func newIndexBucketsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets <instance-id>",
		Short: "读取实例快照的所有属性",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.index.GetBuckets(cmd.Context(), index.TransactionID(args[0]))
			if err != nil {
				output.Error(opts.errOut, "读取失败: %v", err)
				return err
			}
			if opts.outputJSON {
				terms := make(map[string][]string, b.Len())
				for _, t := range b.Terms() {
					terms[t.Name] = t.Values
				}
				return output.PrintJSON(opts.out, map[string]interface{}{
					"bucket": b.Name,
					"terms":  terms,
				})
			}
			if b.Len() == 0 {
				output.Warning(opts.out, "实例 %s 不存在", args[0])
				return nil
			}
			table := output.NewTable([]string{"KEY", "VALUES"})
			for _, t := range b.Terms() {
				table.AddRow([]string{t.Name, strings.Join(t.Values, ", ")})
			}
			table.Render(opts.out)
			return nil
		},
	}
}

func newIndexDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "删除实例快照",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.index.Delete(cmd.Context(), index.TransactionID(args[0])); err != nil {
				output.Error(opts.errOut, "删除失败: %v", err)
				return err
			}
			output.Success(opts.out, "已删除: %s", args[0])
			return nil
		},
	}
}
