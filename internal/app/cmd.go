package app

import "sort"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なしの場合もこれになる。
	CommandServe Command = "serve"
	// CommandMigrate はスキーマを最新バージョンまで適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの/healthを確認して終了する。
	// シェルを持たないコンテナイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はargs[0]をサブコマンドとして解釈する。
// 未知のコマンドはCommandServeとして扱う。
func ParseCommand(args []string) Command {
	cmd, _ := lookupCommand(args)
	return cmd
}

// lookupCommand はサブコマンドを解決し、明示的に認識できたかどうかを併せて返す。
func lookupCommand(args []string) (Command, bool) {
	if len(args) == 0 {
		return CommandServe, true
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return CommandServe, false
	}
	return cmd, true
}

// Commands はサポートするサブコマンド名を昇順で返す。
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
