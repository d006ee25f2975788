package language

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Java is the slow language: it gets twice the time and memory budget.
var defaultProfiles = []Profile{
	{
		ID:            "c",
		Name:          "C (gcc)",
		SourceFile:    "main.c",
		BinaryFile:    "main",
		CompileCmdTpl: "/usr/bin/gcc -O2 -std=c11 -DONLINE_JUDGE -o {bin} {src} -lm",
		RunCmdTpl:     "{bin}",
		Env:           []string{defaultPath},
	},
	{
		ID:            "cpp",
		Name:          "C++17 (g++)",
		SourceFile:    "main.cpp",
		BinaryFile:    "main",
		CompileCmdTpl: "/usr/bin/g++ -O2 -std=c++17 -DONLINE_JUDGE -o {bin} {src}",
		RunCmdTpl:     "{bin}",
		Env:           []string{defaultPath},
	},
	{
		ID:               "java",
		Name:             "Java",
		SourceFile:       "Main.java",
		BinaryFile:       "Main.jar",
		CompileCmdTpl:    "/bin/bash -c \"/usr/bin/javac -encoding utf8 -d out {src} && /usr/bin/jar cfe {bin} Main -C out .\"",
		RunCmdTpl:        "/usr/bin/java -Xss64m -jar {bin}",
		Env:              []string{defaultPath, "JAVA_HOME=/usr/lib/jvm/default-java"},
		TimeMultiplier:   2,
		MemoryMultiplier: 2,
	},
	{
		ID:         "python",
		Name:       "Python 3",
		SourceFile: "main.py",
		RunCmdTpl:  "/usr/bin/python3 {src}",
		Env:        []string{defaultPath, "PYTHONIOENCODING=utf-8"},
	},
}
