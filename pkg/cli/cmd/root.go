// Package cmd wengine命令行（对外导出）
package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions 全局参数
type rootOptions struct {
	configPath string
	dsn        string
	outputJSON bool
	out        io.Writer
	errOut     io.Writer
}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{out: os.Stdout, errOut: os.Stderr}

	rootCmd := &cobra.Command{
		Use:   "wengine",
		Short: "wengine - 工作流实例属性索引与任务运行器",
		Long: `wengine 将工作流任务实例的元数据保存在关系库属性表中，
支持布尔表达式查询、分页浏览实例，以及按Cron调度本地或远程执行任务。

使用示例：
  # 查询正在执行的实例
  wengine index query "State == Executing"

  # 分页浏览已完成的实例，按完成时间排序
  wengine instance page --category DONE --order CompletionDate

  # 按配置启动调度器和运行器
  wengine run --config ./configs/wengine.yaml`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.out = cmd.OutOrStdout()
			opts.errOut = cmd.ErrOrStderr()
		},
	}

	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径（为空时使用默认配置）")
	rootCmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "覆盖配置中的数据库DSN")
	rootCmd.PersistentFlags().BoolVarP(&opts.outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(newIndexCmd(opts))
	rootCmd.AddCommand(newInstanceCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newVersionCmd(opts))
	return rootCmd
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
